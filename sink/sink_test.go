package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/flow"
	"github.com/zsiec/siflow/pipe"
)

func TestFlowRecordsDefinitions(t *testing.T) {
	t.Parallel()
	var seen []string
	f, err := New(nil, func(def *flow.Def) {
		d, _ := def.Def()
		seen = append(seen, d)
	})
	require.NoError(t, err)
	defer f.Release()

	require.NoError(t, pipe.SetFlowDef(f, flow.New("void.")))
	require.NoError(t, pipe.SetFlowDef(f, flow.New("block.")))
	assert.Equal(t, []string{"void.", "block."}, seen)
	assert.Len(t, f.FlowDefs(), 2)

	last, err := pipe.GetFlowDef(f)
	require.NoError(t, err)
	assert.NoError(t, last.MatchDef("block."))

	assert.ErrorIs(t, pipe.SetFlowDef(f, nil), pipe.ErrInvalid)
}

func TestFlowDiscardsBlocks(t *testing.T) {
	t.Parallel()
	f, err := New(nil, nil)
	require.NoError(t, err)
	defer f.Release()

	f.Input(block.New([]byte{1, 2, 3}))
	f.Input(block.New([]byte{4}))
	blocks, bytes := f.Blocks()
	assert.Equal(t, 2, blocks)
	assert.Equal(t, 4, bytes)
}

func TestFlowAnswersFlowFormat(t *testing.T) {
	t.Parallel()
	f, err := New(nil, nil)
	require.NoError(t, err)
	defer f.Release()

	var got *flow.Def
	req := pipe.NewRequest(pipe.RequestFlowFormat, flow.New("void."), func(v any) error {
		got = v.(*flow.Def)
		return nil
	})
	require.NoError(t, pipe.RegisterRequest(f, req))
	require.NotNil(t, got)
	assert.True(t, got.Equal(req.FlowDef))

	pool := pipe.NewRequest(pipe.RequestBlockPool, nil, nil)
	assert.ErrorIs(t, pipe.RegisterRequest(f, pool), pipe.ErrUnhandled)
}

func TestAllocRejectsSignature(t *testing.T) {
	t.Parallel()
	_, err := Manager().Alloc(nil, 0xdead)
	assert.ErrorIs(t, err, pipe.ErrAlloc)
}
