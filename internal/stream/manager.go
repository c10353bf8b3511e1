// Package stream tracks the inputs being decoded and the last service list
// decoded from each of them.
package stream

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/siflow/sdt"
)

// Stream is an input being decoded.
type Stream struct {
	Key       string
	StartedAt time.Time
	done      chan struct{}

	mu        sync.RWMutex
	tsid      int
	onid      int
	services  []sdt.Service
	updates   int
	updatedAt time.Time
}

// Snapshot is a point-in-time view of a stream.
type Snapshot struct {
	Key       string        `json:"stream"`
	TSID      int           `json:"transport_stream_id"`
	ONID      int           `json:"original_network_id"`
	Services  []sdt.Service `json:"services"`
	Updates   int           `json:"updates"`
	UpdatedAt time.Time     `json:"updated_at"`
	UptimeMs  int64         `json:"uptime_ms"`
}

// Update replaces the service list of the stream.
func (s *Stream) Update(tsid, onid int, services []sdt.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tsid, s.onid = tsid, onid
	s.services = slices.Clone(services)
	s.updates++
	s.updatedAt = time.Now()
}

// Snapshot returns the current state of the stream.
func (s *Stream) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Key:       s.Key,
		TSID:      s.tsid,
		ONID:      s.onid,
		Services:  slices.Clone(s.services),
		Updates:   s.updates,
		UpdatedAt: s.updatedAt,
		UptimeMs:  time.Since(s.StartedAt).Milliseconds(),
	}
}

// Done is closed when the stream is removed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Manager manages the lifecycle of decoded streams.
type Manager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	streams map[string]*Stream

	onChange func(active int)
}

// NewManager creates a stream manager. If log is nil, slog.Default() is
// used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		streams: make(map[string]*Stream),
	}
}

// OnChange sets a function called with the number of active streams after
// every create or remove.
func (m *Manager) OnChange(fn func(active int)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Create registers a stream. It returns false if a stream with this key
// already exists.
func (m *Manager) Create(key string) (*Stream, bool) {
	m.mu.Lock()
	if _, ok := m.streams[key]; ok {
		m.mu.Unlock()
		m.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false
	}
	s := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
		tsid:      -1,
		onid:      -1,
	}
	m.streams[key] = s
	n, fn := len(m.streams), m.onChange
	m.mu.Unlock()

	m.log.Info("stream created", "key", key)
	if fn != nil {
		fn(n)
	}
	return s, true
}

// Remove removes a stream from the manager.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	n, fn := len(m.streams), m.onChange
	m.mu.Unlock()

	if !ok {
		return
	}
	close(s.done)
	m.log.Info("stream removed", "key", key)
	if fn != nil {
		fn(n)
	}
}

// Get returns the stream registered under key.
func (m *Manager) Get(key string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[key]
	return s, ok
}

// List returns all active streams sorted by key.
func (m *Manager) List() []*Stream {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(streams, func(a, b *Stream) int {
		return strings.Compare(a.Key, b.Key)
	})
	return streams
}
