package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/siflow/sdt"
)

func TestManagerCreateAndGet(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	s, ok := m.Create("mux1")
	require.True(t, ok)
	require.NotNil(t, s)
	assert.Equal(t, "mux1", s.Key)
	assert.False(t, s.StartedAt.IsZero())

	got, ok := m.Get("mux1")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestManagerCreateDuplicate(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	_, ok := m.Create("mux1")
	require.True(t, ok)
	s, ok := m.Create("mux1")
	assert.False(t, ok)
	assert.Nil(t, s)
}

func TestManagerRemove(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	s, _ := m.Create("mux1")
	m.Remove("mux1")
	m.Remove("mux1")
	m.Remove("nonexistent")

	assert.Empty(t, m.List())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed on remove")
	}
}

func TestManagerListSorted(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	for _, k := range []string{"mux-c", "mux-a", "mux-b"} {
		m.Create(k)
	}

	var keys []string
	for _, s := range m.List() {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"mux-a", "mux-b", "mux-c"}, keys)
}

func TestManagerOnChange(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	var counts []int
	m.OnChange(func(n int) { counts = append(counts, n) })

	m.Create("a")
	m.Create("b")
	m.Create("b")
	m.Remove("a")
	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestStreamSnapshot(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	s, _ := m.Create("mux1")

	snap := s.Snapshot()
	assert.Equal(t, -1, snap.TSID)
	assert.Empty(t, snap.Services)

	services := []sdt.Service{{ID: 1, Name: "One"}, {ID: 2, Name: "Two"}}
	s.Update(0x0401, 0x233A, services)
	services[0].Name = "changed"

	snap = s.Snapshot()
	assert.Equal(t, 0x0401, snap.TSID)
	assert.Equal(t, 0x233A, snap.ONID)
	assert.Equal(t, 1, snap.Updates)
	require.Len(t, snap.Services, 2)
	assert.Equal(t, "One", snap.Services[0].Name, "update keeps its own copy")
}
