package pipe

import (
	"errors"
	"log/slog"

	"github.com/zsiec/siflow/flow"
)

// Event is thrown by a pipe to its probe chain.
type Event interface {
	event()
	String() string
}

// EventReady is thrown once a pipe is allocated and usable.
type EventReady struct{}

// EventDead is thrown when the last reference is released, before the pipe
// tears down its state.
type EventDead struct{}

// EventFatal reports an unrecoverable error. The owner is expected to
// destroy the pipe.
type EventFatal struct{ Err error }

// EventSplitUpdate tells observers that the sub-flow list of a split pipe
// changed and must be enumerated again.
type EventSplitUpdate struct{}

// EventNeedOutput is thrown when a pipe has a flow definition to deliver
// but no output. A probe may react by setting an output.
type EventNeedOutput struct{ FlowDef *flow.Def }

// EventProvideRequest is thrown when a request reaches a pipe without an
// output to forward it to.
type EventProvideRequest struct{ Request *Request }

func (EventReady) event()          {}
func (EventDead) event()           {}
func (EventFatal) event()          {}
func (EventSplitUpdate) event()    {}
func (EventNeedOutput) event()     {}
func (EventProvideRequest) event() {}

func (EventReady) String() string          { return "ready" }
func (EventDead) String() string           { return "dead" }
func (EventFatal) String() string          { return "fatal" }
func (EventSplitUpdate) String() string    { return "split_update" }
func (EventNeedOutput) String() string     { return "need_output" }
func (EventProvideRequest) String() string { return "provide_request" }

// Probe catches events thrown by pipes. Catch returns ErrUnhandled when the
// event should travel further down the chain.
type Probe interface {
	Catch(p Pipe, ev Event) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(p Pipe, ev Event) error

// Catch calls f.
func (f ProbeFunc) Catch(p Pipe, ev Event) error {
	return f(p, ev)
}

type chain []Probe

func (c chain) Catch(p Pipe, ev Event) error {
	for _, probe := range c {
		if probe == nil {
			continue
		}
		if err := probe.Catch(p, ev); !errors.Is(err, ErrUnhandled) {
			return err
		}
	}
	return ErrUnhandled
}

// Chain returns a probe passing events to each probe in turn until one
// handles it.
func Chain(probes ...Probe) Probe {
	return chain(probes)
}

// LogProbe logs every event and lets it through.
func LogProbe(log *slog.Logger) Probe {
	if log == nil {
		log = slog.Default()
	}
	return ProbeFunc(func(p Pipe, ev Event) error {
		attrs := []any{"event", ev.String()}
		if b, ok := p.(interface{ ID() string }); ok {
			attrs = append(attrs, "id", b.ID())
		}
		switch ev := ev.(type) {
		case EventFatal:
			log.Error("pipe fatal error", append(attrs, "error", ev.Err)...)
		case EventNeedOutput, EventProvideRequest:
			log.Debug("pipe event unanswered", attrs...)
		default:
			log.Debug("pipe event", attrs...)
		}
		return ErrUnhandled
	})
}
