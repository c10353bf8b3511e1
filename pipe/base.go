package pipe

import (
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/flow"
)

type outputState int

const (
	outputNone outputState = iota
	outputPending
	outputValid
	outputInvalid
)

// Base holds the state shared by all pipes. Concrete pipes embed it and
// call Init from their manager's Alloc.
type Base struct {
	self  Pipe
	mgr   Manager
	probe Probe
	log   *slog.Logger
	id    string
	refs  atomic.Int32
	free  func()

	output   Pipe
	flowDef  *flow.Def
	state    outputState
	requests []*Request

	flowDefInput *flow.Def
	flowDefAttr  *flow.Def

	stats      StatsRecorder
	warn       *rate.Limiter
	suppressed int
	attrLimit  int
}

// Init sets up b for self with one reference. free runs once the last
// reference is gone, after EventDead has been thrown.
func (b *Base) Init(self Pipe, mgr Manager, probe Probe, opts Options, free func()) {
	b.self = self
	b.mgr = mgr
	b.probe = probe
	b.id = uuid.NewString()
	b.log = opts.Logger.With("pipe", mgr.Name(), "id", b.id)
	b.stats = opts.Stats
	b.warn = rate.NewLimiter(opts.WarnLimit, opts.WarnBurst)
	b.attrLimit = opts.AttrLimit
	b.free = free
	b.refs.Store(1)
}

// ID returns the unique identifier of the pipe.
func (b *Base) ID() string { return b.id }

// Manager returns the manager that allocated the pipe.
func (b *Base) Manager() Manager { return b.mgr }

// Log returns the pipe's logger.
func (b *Base) Log() *slog.Logger { return b.log }

// AttrLimit returns the attribute size bound for flow definitions built by
// the pipe, to be passed to flow.Def.SetAttrLimit.
func (b *Base) AttrLimit() int { return b.attrLimit }

// Retain takes a reference.
func (b *Base) Retain() { b.refs.Add(1) }

// Release drops a reference. The last release throws EventDead and tears
// the pipe down.
func (b *Base) Release() {
	n := b.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic("pipe: release of released pipe")
	}
	b.Throw(EventDead{})
	if b.free != nil {
		b.free()
	}
}

// Throw sends ev through the probe chain.
func (b *Base) Throw(ev Event) error {
	if b.stats != nil {
		b.stats.Inc(b.mgr.Name(), ev.String())
	}
	if b.probe == nil {
		return ErrUnhandled
	}
	return b.probe.Catch(b.self, ev)
}

// ThrowReady signals the pipe is usable.
func (b *Base) ThrowReady() { b.Throw(EventReady{}) }

// ThrowFatal reports an unrecoverable error.
func (b *Base) ThrowFatal(err error) { b.Throw(EventFatal{Err: err}) }

// ThrowSplitUpdate signals a change of the sub-flow list.
func (b *Base) ThrowSplitUpdate() { b.Throw(EventSplitUpdate{}) }

// Count bumps a named counter of the pipe type.
func (b *Base) Count(event string) {
	if b.stats != nil {
		b.stats.Inc(b.mgr.Name(), event)
	}
}

// Gauge records a named value of the pipe type.
func (b *Base) Gauge(name string, v float64) {
	if b.stats != nil {
		b.stats.Set(b.mgr.Name(), name, v)
	}
}

// Warn logs a transient problem, dropping messages above the configured
// rate. The number of dropped messages is reported with the next one.
func (b *Base) Warn(msg string, args ...any) {
	if !b.warn.Allow() {
		b.suppressed++
		return
	}
	if b.suppressed > 0 {
		args = append(args, "suppressed", b.suppressed)
		b.suppressed = 0
	}
	b.log.Warn(msg, args...)
}

// Output returns the current output pipe.
func (b *Base) Output() Pipe { return b.output }

// FlowDef returns the current output flow definition.
func (b *Base) FlowDef() *flow.Def { return b.flowDef }

// StoreFlowDef replaces the output flow definition. The new definition is
// delivered downstream before the next forwarded ref, or on Forward(nil).
func (b *Base) StoreFlowDef(def *flow.Def) {
	b.flowDef = def
	if def == nil {
		b.state = outputNone
		return
	}
	b.state = outputPending
}

// Forward sends ref to the output, delivering a pending flow definition
// first. A nil ref only flushes the flow definition. Refs that cannot be
// delivered are released.
func (b *Base) Forward(ref *block.Ref) {
	if b.state == outputPending {
		if b.output == nil {
			b.Throw(EventNeedOutput{FlowDef: b.flowDef})
		}
		if b.output != nil {
			b.sendFlowDef()
		}
	}
	if ref == nil {
		return
	}
	if b.state != outputValid || b.output == nil {
		ref.Release()
		return
	}
	b.output.Input(ref)
}

func (b *Base) sendFlowDef() {
	if err := SetFlowDef(b.output, b.flowDef); err != nil {
		b.log.Warn("output rejected flow definition", "error", err)
		b.state = outputInvalid
		return
	}
	b.state = outputValid
}

// SetOutput links the pipe to output. Registered requests move from the
// old output to the new one, and the flow definition is sent again.
func (b *Base) SetOutput(output Pipe) error {
	if output == b.output {
		return nil
	}
	old := b.output
	if old != nil {
		for _, r := range b.requests {
			UnregisterRequest(old, r)
		}
	}
	if output != nil {
		output.Retain()
	}
	b.output = output
	if old != nil {
		old.Release()
	}
	if b.flowDef != nil {
		b.state = outputPending
	}
	if output != nil {
		for _, r := range b.requests {
			if err := RegisterRequest(output, r); err != nil && !errors.Is(err, ErrUnhandled) {
				b.log.Warn("output refused request", "request", r.Kind, "error", err)
			}
		}
	}
	return nil
}

// RegisterOutputRequest records r and forwards it to the output, or to
// the probe chain when there is no output yet.
func (b *Base) RegisterOutputRequest(r *Request) error {
	if r == nil {
		return ErrInvalid
	}
	b.requests = append(b.requests, r)
	if b.output != nil {
		return RegisterRequest(b.output, r)
	}
	return b.Throw(EventProvideRequest{Request: r})
}

// UnregisterOutputRequest forgets r and withdraws it from the output.
func (b *Base) UnregisterOutputRequest(r *Request) error {
	i := slices.Index(b.requests, r)
	if i < 0 {
		return ErrInvalid
	}
	b.requests = slices.Delete(b.requests, i, i+1)
	if b.output != nil {
		return UnregisterRequest(b.output, r)
	}
	return nil
}

// ControlOutput handles the commands related to the output link. It
// returns ErrUnhandled for any other command.
func (b *Base) ControlOutput(cmd Command) error {
	switch c := cmd.(type) {
	case *RegisterRequestCmd:
		return b.RegisterOutputRequest(c.Request)
	case *UnregisterRequestCmd:
		return b.UnregisterOutputRequest(c.Request)
	case *GetOutputCmd:
		c.Output = b.output
		return nil
	case *SetOutputCmd:
		return b.SetOutput(c.Output)
	case *GetFlowDefCmd:
		c.FlowDef = b.flowDef
		return nil
	}
	return ErrUnhandled
}

// CleanOutput withdraws requests, releases the output and drops the flow
// definition.
func (b *Base) CleanOutput() {
	if b.output != nil {
		for _, r := range b.requests {
			UnregisterRequest(b.output, r)
		}
		b.output.Release()
		b.output = nil
	}
	b.requests = nil
	b.flowDef = nil
	b.state = outputNone
}

// StoreFlowDefInput records the input flow definition and returns a copy
// merged with the stored attributes.
func (b *Base) StoreFlowDefInput(def *flow.Def) *flow.Def {
	b.flowDefInput = def
	return b.mergedFlowDef()
}

// StoreFlowDefAttr records the attributes amending the input flow
// definition and returns the merged definition, or nil without input.
func (b *Base) StoreFlowDefAttr(attr *flow.Def) *flow.Def {
	b.flowDefAttr = attr
	return b.mergedFlowDef()
}

func (b *Base) mergedFlowDef() *flow.Def {
	if b.flowDefInput == nil {
		return nil
	}
	def := b.flowDefInput.Dup()
	if b.flowDefAttr != nil {
		def.Merge(b.flowDefAttr)
	}
	return def
}

// FlowDefInput returns the input flow definition.
func (b *Base) FlowDefInput() *flow.Def { return b.flowDefInput }

// FlowDefAttr returns the stored attributes.
func (b *Base) FlowDefAttr() *flow.Def { return b.flowDefAttr }

// CleanFlowDef drops the input flow definition and attributes.
func (b *Base) CleanFlowDef() {
	b.flowDefInput = nil
	b.flowDefAttr = nil
}
