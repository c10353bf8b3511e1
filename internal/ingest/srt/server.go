package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/siflow/internal/ingest"
)

// readBufferSize is the read buffer for SRT socket reads, ten payloads of
// seven packets.
const readBufferSize = ingest.ReadSize

// latencyNs is the SRT latency in nanoseconds (120ms).
const latencyNs = 120_000_000

// Server accepts SRT publish connections and registers each of them as an
// input.
type Server struct {
	log      *slog.Logger
	addr     string
	format   ingest.InputFormat
	registry *ingest.Registry
}

// NewServer creates an SRT server listening on addr. If log is nil,
// slog.Default() is used.
func NewServer(addr string, format ingest.InputFormat, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "srt-server"),
		addr:     addr,
		format:   format,
		registry: registry,
	}
}

// Start accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		key := extractStreamKey(conn.StreamID())
		if _, exists := s.registry.Get(key); exists {
			s.log.Warn("rejecting duplicate publish", "stream_key", key, "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		s.log.Info("publish", "stream_key", key, "remote", conn.RemoteAddr())

		go s.handleConnection(ctx, conn, key)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *srtgo.Conn, key string) {
	defer conn.Close()

	stream, writer := s.registry.Register(key, s.format)
	stream.SetRemoteAddr(conn.RemoteAddr().String())

	copyStream(ctx, s.log, conn, writer, stream)

	stats := stream.Stats()
	s.registry.Unregister(key)
	s.log.Info("connection closed", "stream_key", key,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"uptime_ms", stats.UptimeMs)
}

// copyStream moves bytes from conn to w until either side fails or ctx is
// done.
func copyStream(ctx context.Context, log *slog.Logger, conn io.Reader, w io.Writer, stream *ingest.Stream) {
	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read error", "stream_key", stream.Key, "error", err)
			}
			return
		}
		stream.RecordRead(n)
		if _, err := w.Write(buf[:n]); err != nil {
			log.Debug("pipe write error", "stream_key", stream.Key, "error", err)
			return
		}
	}
}

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
