package main

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/zsiec/siflow/internal/ingest"
	"github.com/zsiec/siflow/internal/pipeline"
	"github.com/zsiec/siflow/test/tools/tsutil"
)

func decode(t *testing.T, sc tsutil.StreamConfig, data []byte) []pipeline.Update {
	t.Helper()
	format, ok := ingest.ParseFormat(sc.Format)
	if !ok {
		t.Fatalf("format %q", sc.Format)
	}
	var got []pipeline.Update
	p, err := pipeline.New(sc.Key, pipeline.Options{
		Format:   format,
		OnUpdate: func(u pipeline.Update) { got = append(got, u) },
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.Run(context.Background(), bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestGeneratedStreamsDecode(t *testing.T) {
	for _, sc := range streams {
		t.Run(sc.Key, func(t *testing.T) {
			data, cycle := build(sc, rand.New(rand.NewSource(1)))
			if cycle == 0 || cycle%tsutil.TSPacketSize != 0 {
				t.Fatalf("cycle = %d", cycle)
			}

			got := decode(t, sc, data)
			if len(got) != sc.Versions {
				t.Fatalf("got %d updates, want one per version (%d)", len(got), sc.Versions)
			}
			last := got[len(got)-1]
			if last.TSID != int(sc.TSID) || last.ONID != int(sc.ONID) {
				t.Errorf("tsid=%d onid=%d", last.TSID, last.ONID)
			}
			if len(last.Services) != sc.Services {
				t.Fatalf("got %d services, want %d", len(last.Services), sc.Services)
			}
			if name := last.Services[sc.Services-1].Name; name != "Новости" {
				t.Errorf("last service name = %q", name)
			}
		})
	}
}

func TestTimestamped(t *testing.T) {
	ts := bytes.Repeat(nullPacket(), 3)
	out := timestamped(ts)
	if len(out) != 3*192 {
		t.Fatalf("len = %d", len(out))
	}
	for off := 0; off < len(out); off += 192 {
		if out[off+4] != 0x47 {
			t.Errorf("no sync byte at %d", off+4)
		}
	}
}
