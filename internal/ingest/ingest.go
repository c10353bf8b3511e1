// Package ingest tracks active inputs and pumps their bytes into decoding
// pipelines. Network receivers write into a per-stream pipe; the registry
// hands the reading side to the onStream callback.
package ingest

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// InputFormat identifies the packet framing of an input.
type InputFormat int

// Supported input framings.
const (
	FormatTS InputFormat = iota
	FormatM2TS
	FormatRS
)

// PacketSize returns the size of one packet on the wire.
func (f InputFormat) PacketSize() int {
	switch f {
	case FormatM2TS:
		return 192
	case FormatRS:
		return 204
	}
	return 188
}

func (f InputFormat) String() string {
	switch f {
	case FormatM2TS:
		return "m2ts"
	case FormatRS:
		return "ts-rs"
	}
	return "ts"
}

// ParseFormat maps a configuration name to a format. Unknown names map to
// FormatTS and false.
func ParseFormat(name string) (InputFormat, bool) {
	switch name {
	case "", "ts":
		return FormatTS, true
	case "m2ts":
		return FormatM2TS, true
	case "ts-rs":
		return FormatRS, true
	}
	return FormatTS, false
}

// Stats captures connection-level counters for an input.
type Stats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream is an active input. Bytes written to the stream pipe by a receiver
// are read by the decoding pipeline.
type Stream struct {
	Key       string
	StartedAt time.Time
	Format    InputFormat
	input     io.ReadCloser
	pw        io.WriteCloser
	done      chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead bumps the byte and read counters after a successful read.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the input for diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Stats returns a snapshot of the input counters.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks active inputs by key and dispatches new ones to the
// onStream callback.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(key string, input io.Reader, format InputFormat)
}

// NewRegistry creates a Registry. onStream runs in its own goroutine for
// every registered stream.
func NewRegistry(onStream func(key string, input io.Reader, format InputFormat)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a stream and returns it with the writer its receiver
// feeds.
func (r *Registry) Register(key string, format InputFormat) (*Stream, io.Writer) {
	pr, pw := io.Pipe()

	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Format:    format,
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(key, pr, format)
	}

	return stream, pw
}

// Unregister removes a stream, closing its pipe and Done channel.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the stream registered under key.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}
