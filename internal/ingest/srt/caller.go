package srt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/siflow/deal"
	"github.com/zsiec/siflow/internal/ingest"
)

// dialTimeout bounds a single connection attempt, queueing included.
const dialTimeout = 10 * time.Second

// PullRequest describes a remote SRT source to pull from.
type PullRequest struct {
	Address   string             `json:"address"`
	StreamKey string             `json:"streamKey"`
	StreamID  string             `json:"streamId,omitempty"`
	Format    ingest.InputFormat `json:"-"`
}

type activePull struct {
	req    PullRequest
	cancel context.CancelFunc
}

// Caller dials remote SRT listeners and streams their data into the
// ingest registry. Connection setup goes through deal.Default so that
// concurrent pulls never dial at the same time.
type Caller struct {
	log      *slog.Logger
	registry *ingest.Registry
	deal     *deal.Deal

	mu    sync.Mutex
	pulls map[string]*activePull
}

// NewCaller creates a Caller registering pulled streams with registry. If
// log is nil, slog.Default() is used.
func NewCaller(registry *ingest.Registry, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		log:      log.With("component", "srt-caller"),
		registry: registry,
		deal:     deal.Default,
		pulls:    make(map[string]*activePull),
	}
}

// Pull dials the remote listener and returns once the connection is up or
// has failed. Streaming continues in the background until ctx is done,
// the remote closes, or Stop is called.
func (c *Caller) Pull(ctx context.Context, req PullRequest) error {
	if req.Address == "" {
		return errors.New("srt: address is required")
	}
	if req.StreamKey == "" {
		return errors.New("srt: stream key is required")
	}
	if c.active(req.StreamKey) {
		return fmt.Errorf("srt: pull already active for stream key %q", req.StreamKey)
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	cfg.StreamID = req.StreamID
	if cfg.StreamID == "" {
		cfg.StreamID = "live/" + req.StreamKey
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ticket := c.deal.Request()
	if err := ticket.Wait(dialCtx); err != nil {
		return fmt.Errorf("srt: waiting for dial slot: %w", err)
	}
	c.log.Info("dialing", "address", req.Address, "stream_key", req.StreamKey)

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		defer ticket.Yield()
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("srt: dial %s: %w", req.Address, res.err)
		}
		return c.startStreaming(ctx, req, res.conn)
	case <-dialCtx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("srt: dial %s timed out after %s", req.Address, dialTimeout)
	}
}

func (c *Caller) active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pulls[key]
	return ok
}

func (c *Caller) startStreaming(ctx context.Context, req PullRequest, conn *srtgo.Conn) error {
	pullCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if _, exists := c.pulls[req.StreamKey]; exists {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return fmt.Errorf("srt: pull already active for stream key %q", req.StreamKey)
	}
	c.pulls[req.StreamKey] = &activePull{req: req, cancel: cancel}
	c.mu.Unlock()

	c.log.Info("connected", "address", req.Address, "stream_key", req.StreamKey)

	stream, writer := c.registry.Register(req.StreamKey, req.Format)
	stream.SetRemoteAddr(req.Address)

	go func() {
		<-pullCtx.Done()
		conn.Close()
	}()

	go func() {
		defer func() {
			cancel()
			stats := stream.Stats()
			c.registry.Unregister(req.StreamKey)
			c.mu.Lock()
			delete(c.pulls, req.StreamKey)
			c.mu.Unlock()
			c.log.Info("pull ended", "stream_key", req.StreamKey,
				"bytes", stats.BytesReceived, "reads", stats.ReadCount,
				"uptime_ms", stats.UptimeMs)
		}()
		copyStream(pullCtx, c.log, conn, writer, stream)
	}()

	return nil
}

// Stop ends the pull of streamKey.
func (c *Caller) Stop(streamKey string) error {
	c.mu.Lock()
	ap, ok := c.pulls[streamKey]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("srt: no active pull for stream key %q", streamKey)
	}

	ap.cancel()
	return nil
}

// ActivePulls lists the running pulls.
func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PullRequest, 0, len(c.pulls))
	for _, ap := range c.pulls {
		out = append(out, ap.req)
	}
	return out
}
