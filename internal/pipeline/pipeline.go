// Package pipeline decodes the service description of a single input. It
// wires packet splitting, section reassembly, the SDT decoder and a flow
// sink into one pipe graph, feeds it from a reader and reports every new
// service list.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/flow"
	"github.com/zsiec/siflow/internal/ingest"
	"github.com/zsiec/siflow/internal/mpegts"
	"github.com/zsiec/siflow/pipe"
	"github.com/zsiec/siflow/sdt"
	"github.com/zsiec/siflow/sink"
	"github.com/zsiec/siflow/tscheck"
	"github.com/zsiec/siflow/tspsi"
)

// Update is a service list decoded from a stream.
type Update struct {
	Stream   string        `json:"stream"`
	TSID     int           `json:"transport_stream_id"`
	ONID     int           `json:"original_network_id"`
	Services []sdt.Service `json:"services"`
	At       time.Time     `json:"time"`
}

// Options tune a pipeline.
type Options struct {
	// Format is the packet framing of the input.
	Format ingest.InputFormat
	// PID carries the SDT; zero selects 0x11.
	PID uint16
	// OnUpdate receives every accepted service list.
	OnUpdate func(Update)
	// Pipe options are applied to every pipe of the graph.
	Pipe []pipe.Option
}

// Pipeline owns the pipe graph of one input. It is driven by a single
// goroutine through Run.
type Pipeline struct {
	log  *slog.Logger
	key  string
	opts Options

	check   pipe.Pipe
	psi     pipe.Pipe
	decoder *sdt.Decoder
	sink    *sink.Flow
	pool    *block.Pool

	cancel  context.CancelFunc
	fatal   error
	updates atomic.Int64
	bytes   atomic.Int64
}

// New builds the graph for stream key.
func New(key string, opts Options, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.PID == 0 {
		opts.PID = mpegts.PIDSDT
	}
	p := &Pipeline{
		log:  log.With("stream", key),
		key:  key,
		opts: opts,
		pool: block.NewPool(ingest.ReadSize),
	}
	popts := append([]pipe.Option{pipe.WithLogger(p.log)}, opts.Pipe...)
	probe := pipe.Chain(pipe.ProbeFunc(p.catch), pipe.LogProbe(p.log))

	var err error
	if p.sink, err = sink.New(probe, nil, popts...); err != nil {
		return nil, fmt.Errorf("pipeline: sink: %w", err)
	}
	dec, err := pipe.AllocVoid(sdt.Manager(), probe, popts...)
	if err != nil {
		p.sink.Release()
		return nil, fmt.Errorf("pipeline: sdt decoder: %w", err)
	}
	p.decoder = dec.(*sdt.Decoder)
	if p.psi, err = pipe.AllocVoid(tspsi.Manager(), probe, popts...); err != nil {
		p.Close()
		return nil, fmt.Errorf("pipeline: section assembler: %w", err)
	}
	if p.check, err = pipe.AllocVoid(tscheck.Manager(), probe, popts...); err != nil {
		p.Close()
		return nil, fmt.Errorf("pipeline: packet checker: %w", err)
	}

	if err := p.setup(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) setup() error {
	if err := pipe.Link(p.check, p.psi, p.decoder, p.sink); err != nil {
		return fmt.Errorf("pipeline: link: %w", err)
	}
	if err := tscheck.Size(p.check, p.opts.Format.PacketSize()); err != nil {
		return fmt.Errorf("pipeline: packet size: %w", err)
	}
	if err := tspsi.Select(p.psi, p.opts.PID, sdt.ExpectedFlowDef, sdt.TableIDActual); err != nil {
		return fmt.Errorf("pipeline: select pid: %w", err)
	}
	if err := pipe.SetFlowDef(p.check, flow.New(tscheck.ExpectedFlowDef)); err != nil {
		return fmt.Errorf("pipeline: input flow definition: %w", err)
	}
	return nil
}

// catch reports service list changes and remembers fatal errors.
func (p *Pipeline) catch(src pipe.Pipe, ev pipe.Event) error {
	switch ev := ev.(type) {
	case pipe.EventSplitUpdate:
		if src != pipe.Pipe(p.decoder) {
			return pipe.ErrUnhandled
		}
		p.report()
		return nil
	case pipe.EventFatal:
		if p.fatal == nil {
			p.fatal = ev.Err
		}
		if p.cancel != nil {
			p.cancel()
		}
	}
	return pipe.ErrUnhandled
}

// report walks the decoder's services and hands them to OnUpdate.
func (p *Pipeline) report() {
	defs, err := pipe.SplitFlowDefs(p.decoder)
	if err != nil {
		p.log.Warn("cannot list services", "error", err)
		return
	}
	u := Update{
		Stream:   p.key,
		TSID:     p.decoder.TSID(),
		ONID:     p.decoder.ONID(),
		Services: make([]sdt.Service, 0, len(defs)),
		At:       time.Now(),
	}
	for _, def := range defs {
		u.Services = append(u.Services, sdt.ServiceFromFlowDef(def))
	}
	p.updates.Add(1)
	p.log.Info("service list updated", "tsid", u.TSID, "onid", u.ONID, "services", len(u.Services))
	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(u)
	}
}

// Run feeds r through the graph until r ends, ctx is cancelled or a pipe
// fails. The end of input is not an error.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.cancel = cancel

	n, err := ingest.Pump(ctx, r, p.check, p.pool)
	p.bytes.Add(n)
	p.log.Info("input ended", "bytes", n, "updates", p.updates.Load())

	if p.fatal != nil {
		return fmt.Errorf("pipeline %s: %w", p.key, p.fatal)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Services returns the service list in effect.
func (p *Pipeline) Services() []sdt.Service {
	return p.decoder.Services()
}

// Updates returns the number of service lists reported so far.
func (p *Pipeline) Updates() int64 { return p.updates.Load() }

// Bytes returns the number of input bytes consumed.
func (p *Pipeline) Bytes() int64 { return p.bytes.Load() }

// Close releases the graph.
func (p *Pipeline) Close() {
	for _, x := range []pipe.Pipe{p.check, p.psi} {
		if x != nil {
			x.Release()
		}
	}
	if p.decoder != nil {
		p.decoder.Release()
	}
	if p.sink != nil {
		p.sink.Release()
	}
	p.check, p.psi, p.decoder, p.sink = nil, nil, nil, nil
}
