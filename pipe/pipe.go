// Package pipe implements the streaming-node framework: pipes are stateful
// processing stages connected into a graph, each forwarding block refs and
// flow definitions to a single output.
//
// A pipe is created by its type's [Manager], is reference counted, and is
// driven through two entry points: Input, which consumes one block ref, and
// Control, which dispatches a closed set of commands. Both are invoked from
// a single goroutine per graph; pipes never lock internally. Lifecycle and
// notification events are thrown to a [Probe] chain supplied at allocation.
//
// [Base] carries the state every pipe shares (refcount, output link,
// deferred flow definition dispatch, request proxying) and is meant to be
// embedded by concrete pipes.
package pipe

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/zsiec/siflow/block"
)

// Result codes of Control and Alloc. Compare with errors.Is.
var (
	ErrUnhandled = errors.New("pipe: unhandled command")
	ErrInvalid   = errors.New("pipe: invalid argument")
	ErrAlloc     = errors.New("pipe: allocation failure")
)

// SignatureVoid is the allocation signature of pipes taking no argument
// besides their options.
const SignatureVoid uint32 = 0x766f6964 // "void"

// Pipe is a processing stage.
type Pipe interface {
	// Input consumes ref. The pipe owns ref from then on and releases it
	// exactly once, whether processing succeeds or not.
	Input(ref *block.Ref)
	// Control dispatches a command. It returns ErrUnhandled for commands
	// the pipe does not implement.
	Control(cmd Command) error
	// Retain takes a reference on the pipe.
	Retain()
	// Release drops a reference; the last one destroys the pipe.
	Release()
}

// Manager allocates pipes of one type. There is one manager per pipe type.
type Manager interface {
	// Name identifies the pipe type in logs and metrics.
	Name() string
	// Signature identifies the pipe type for local commands.
	Signature() uint32
	// Alloc creates a pipe. sig selects the allocation convention; only
	// SignatureVoid is defined.
	Alloc(probe Probe, sig uint32, opts ...Option) (Pipe, error)
}

// AllocVoid allocates a pipe that takes no arguments.
func AllocVoid(mgr Manager, probe Probe, opts ...Option) (Pipe, error) {
	return mgr.Alloc(probe, SignatureVoid, opts...)
}

// StatsRecorder receives per-pipe counters and gauges.
type StatsRecorder interface {
	Inc(pipe, event string)
	Set(pipe, name string, v float64)
}

// Options configures an allocated pipe.
type Options struct {
	Logger    *slog.Logger
	Stats     StatsRecorder
	WarnLimit rate.Limit
	WarnBurst int
	// AttrLimit bounds the string and blob attributes of the flow
	// definitions a pipe builds; zero means flow.MaxAttrSize.
	AttrLimit int
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the parent logger of the pipe.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithStats sets the stats recorder of the pipe.
func WithStats(s StatsRecorder) Option {
	return func(o *Options) { o.Stats = s }
}

// WithWarnRate bounds the rate of transient warnings logged by the pipe.
func WithWarnRate(limit rate.Limit, burst int) Option {
	return func(o *Options) {
		o.WarnLimit = limit
		o.WarnBurst = burst
	}
}

// WithAttrLimit bounds the attributes of flow definitions built by the pipe.
func WithAttrLimit(n int) Option {
	return func(o *Options) { o.AttrLimit = n }
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		WarnLimit: rate.Every(time.Second),
		WarnBurst: 10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Link connects pipes into a linear chain, each one outputting to the next.
func Link(pipes ...Pipe) error {
	for i := 0; i+1 < len(pipes); i++ {
		if err := SetOutput(pipes[i], pipes[i+1]); err != nil {
			return err
		}
	}
	return nil
}
