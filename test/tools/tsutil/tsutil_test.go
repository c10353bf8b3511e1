package tsutil

import (
	"testing"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Generated: "2026-01-01T00:00:00Z",
		Streams:   []StreamConfig{{Number: 1, Key: "mux1", Services: 3, Format: "m2ts"}},
	}
	if err := WriteManifest(dir, m); err != nil {
		t.Fatal(err)
	}
	got, err := ReadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Streams) != 1 || got.Streams[0].Key != "mux1" {
		t.Fatalf("streams = %+v", got.Streams)
	}
	if name := got.Streams[0].FileName(); name != "stream_1.m2ts" {
		t.Errorf("FileName() = %q", name)
	}
}

func TestReadManifestMissing(t *testing.T) {
	if _, err := ReadManifest(t.TempDir()); err == nil {
		t.Fatal("expected an error without a manifest")
	}
}
