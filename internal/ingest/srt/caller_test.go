package srt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zsiec/siflow/deal"
	"github.com/zsiec/siflow/internal/ingest"
)

func TestPullValidation(t *testing.T) {
	t.Parallel()
	c := NewCaller(ingest.NewRegistry(nil), nil)

	tests := []struct {
		name string
		req  PullRequest
	}{
		{"missing address", PullRequest{StreamKey: "a"}},
		{"missing key", PullRequest{Address: "127.0.0.1:6000"}},
	}
	for _, tc := range tests {
		if err := c.Pull(context.Background(), tc.req); err == nil {
			t.Errorf("%s: Pull succeeded", tc.name)
		}
	}
}

func TestPullWaitsForDialSlot(t *testing.T) {
	t.Parallel()
	c := NewCaller(ingest.NewRegistry(nil), nil)
	c.deal = deal.New()
	if !c.deal.Grab() {
		t.Fatal("fresh deal should be free")
	}
	defer c.deal.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Pull(ctx, PullRequest{Address: "127.0.0.1:1", StreamKey: "k"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Pull = %v, want deadline exceeded while the slot is held", err)
	}
	if len(c.ActivePulls()) != 0 {
		t.Error("failed pull left an active entry")
	}
}

func TestStopUnknown(t *testing.T) {
	t.Parallel()
	c := NewCaller(ingest.NewRegistry(nil), nil)
	if err := c.Stop("nope"); err == nil {
		t.Error("Stop of an unknown key succeeded")
	}
}
