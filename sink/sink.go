// Package sink provides terminal pipes.
package sink

import (
	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/flow"
	"github.com/zsiec/siflow/pipe"
)

// Signature identifies flow sinks in local commands.
const Signature uint32 = 0x666c6f77 // "flow"

type manager struct{}

// Manager returns the manager of flow sinks.
func Manager() pipe.Manager { return manager{} }

func (manager) Name() string      { return "flow_sink" }
func (manager) Signature() uint32 { return Signature }

func (m manager) Alloc(probe pipe.Probe, sig uint32, opts ...pipe.Option) (pipe.Pipe, error) {
	if sig != pipe.SignatureVoid {
		return nil, pipe.ErrAlloc
	}
	f := &Flow{}
	f.Init(f, m, probe, pipe.NewOptions(opts...), f.free)
	f.ThrowReady()
	return f, nil
}

// New allocates a flow sink calling fn for every flow definition it is
// given. fn may be nil.
func New(probe pipe.Probe, fn func(*flow.Def), opts ...pipe.Option) (*Flow, error) {
	p, err := pipe.AllocVoid(Manager(), probe, opts...)
	if err != nil {
		return nil, err
	}
	f := p.(*Flow)
	f.fn = fn
	return f, nil
}

// Flow is a terminal pipe accepting any flow definition. It records the
// definitions it receives and discards data.
type Flow struct {
	pipe.Base

	fn      func(*flow.Def)
	onInput func(*block.Ref)
	defs    []*flow.Def
	blocks  int
	bytes   int
}

// OnInput sets a function inspecting every block before it is released.
// fn must not keep ref.
func (f *Flow) OnInput(fn func(ref *block.Ref)) { f.onInput = fn }

// Input counts and releases ref.
func (f *Flow) Input(ref *block.Ref) {
	f.blocks++
	f.bytes += ref.Size()
	if f.onInput != nil {
		f.onInput(ref)
	}
	ref.Release()
}

// Control records flow definitions and answers flow format requests with
// the proposed definition unchanged.
func (f *Flow) Control(cmd pipe.Command) error {
	switch c := cmd.(type) {
	case *pipe.SetFlowDefCmd:
		if c.FlowDef == nil {
			return pipe.ErrInvalid
		}
		def := c.FlowDef.Dup()
		f.defs = append(f.defs, def)
		if f.fn != nil {
			f.fn(def)
		}
		return nil
	case *pipe.GetFlowDefCmd:
		c.FlowDef = f.Last()
		return nil
	case *pipe.RegisterRequestCmd:
		if c.Request == nil {
			return pipe.ErrInvalid
		}
		if c.Request.Kind == pipe.RequestFlowFormat && c.Request.FlowDef != nil {
			return c.Request.Provide(c.Request.FlowDef.Dup())
		}
		return pipe.ErrUnhandled
	case *pipe.UnregisterRequestCmd:
		return nil
	}
	return pipe.ErrUnhandled
}

// FlowDefs returns the flow definitions received so far.
func (f *Flow) FlowDefs() []*flow.Def { return f.defs }

// Last returns the most recent flow definition, or nil.
func (f *Flow) Last() *flow.Def {
	if len(f.defs) == 0 {
		return nil
	}
	return f.defs[len(f.defs)-1]
}

// Blocks returns the number of blocks and bytes discarded.
func (f *Flow) Blocks() (blocks, bytes int) { return f.blocks, f.bytes }

func (f *Flow) free() {
	f.defs = nil
	f.fn = nil
	f.onInput = nil
}
