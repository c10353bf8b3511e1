package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/zsiec/siflow/internal/pipeline"
	"github.com/zsiec/siflow/sdt"
)

func update() pipeline.Update {
	return pipeline.Update{
		Stream: "mux1",
		TSID:   0x0401,
		ONID:   0x233A,
		Services: []sdt.Service{
			{ID: 0x1001, Name: "News", Provider: "ACME", Type: 1, Running: sdt.RunningRunning, EIT: true, EITSchedule: true},
			{ID: 0x1002, Running: sdt.RunningNotRunning, Scrambled: true, Descriptors: [][]byte{{0x5F, 0x00}}},
		},
	}
}

func TestPrintText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := newPrinter(&buf, "text").print(update()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "mux1 tsid=0x0401 onid=0x233A services=2" {
		t.Errorf("header = %q", lines[0])
	}
	for _, want := range []string{`"News"`, `provider="ACME"`, "running", "eit=pf+sched"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("line %q lacks %q", lines[1], want)
		}
	}
	for _, want := range []string{"not running", "scrambled", "descriptors=1"} {
		if !strings.Contains(lines[2], want) {
			t.Errorf("line %q lacks %q", lines[2], want)
		}
	}
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := newPrinter(&buf, "json").print(update()); err != nil {
		t.Fatal(err)
	}
	var got pipeline.Update
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.TSID != 0x0401 || len(got.Services) != 2 || got.Services[0].Name != "News" {
		t.Errorf("decoded = %+v", got)
	}
}
