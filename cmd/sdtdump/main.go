// Command sdtdump decodes the Service Description Table of transport
// streams and prints every new service list.
//
// Usage:
//
//	sdtdump capture.ts
//	sdtdump -output text srt://relay:6000?streamid=live/mux1
//	sdtdump -config siflow.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zsiec/siflow/internal/config"
	"github.com/zsiec/siflow/internal/ingest"
	srtingest "github.com/zsiec/siflow/internal/ingest/srt"
	"github.com/zsiec/siflow/internal/metric"
	"github.com/zsiec/siflow/internal/pipeline"
	"github.com/zsiec/siflow/internal/stream"
	"github.com/zsiec/siflow/pipe"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("SIFLOW_CONFIG"), "YAML configuration file (env: SIFLOW_CONFIG)")
	output := flag.String("output", "", "output format: json or text")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("sdtdump", version)
		return
	}

	cfg, err := loadConfig(*configPath, *output, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "sdtdump:", err)
		os.Exit(2)
	}
	slog.SetDefault(newLogger(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		slog.Error("sdtdump failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and appends the inputs given on
// the command line.
func loadConfig(path, output string, args []string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if output != "" {
		cfg.Output = output
	}
	for i, arg := range args {
		name := filepath.Base(arg)
		if arg == "-" {
			name = "stdin"
		}
		cfg.Inputs = append(cfg.Inputs, config.Input{Name: fmt.Sprintf("%s#%d", name, i), URL: arg})
	}
	if len(cfg.Inputs) == 0 {
		return nil, errors.New("no input given")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

type app struct {
	cfg      *config.Config
	mgr      *stream.Manager
	recorder *metric.Recorder
	out      *printer
}

func run(ctx context.Context, cfg *config.Config, w io.Writer) error {
	a := &app{
		cfg:      cfg,
		mgr:      stream.NewManager(nil),
		recorder: metric.NewRecorder(),
		out:      newPrinter(w, cfg.Output),
	}
	a.mgr.OnChange(func(n int) { a.recorder.Streams.Set(float64(n)) })

	slog.Info("sdtdump starting", "version", version, "inputs", len(cfg.Inputs), "metrics", cfg.MetricsAddr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// The registry is created after the errgroup so network streams stop
	// with the group context.
	registry := ingest.NewRegistry(func(key string, input io.Reader, format ingest.InputFormat) {
		if err := a.decode(ctx, key, input, format); err != nil {
			slog.Error("stream failed", "stream", key, "error", err)
		}
	})
	caller := srtingest.NewCaller(registry, nil)

	if cfg.MetricsAddr != "" {
		g.Go(func() error { return a.recorder.Serve(ctx, cfg.MetricsAddr, nil) })
	}

	var local errgroup.Group
	live := false
	for _, in := range cfg.Inputs {
		src, err := in.Source()
		if err != nil {
			return err
		}
		switch src.Kind {
		case config.SourceFile:
			local.Go(func() error { return a.decodeFile(ctx, in.Name, src) })
		case config.SourceStdin:
			local.Go(func() error { return a.decode(ctx, in.Name, os.Stdin, src.Format) })
		case config.SourceSRTCaller:
			live = true
			g.Go(func() error {
				return caller.Pull(ctx, srtingest.PullRequest{
					Address:   src.Address,
					StreamKey: in.Name,
					StreamID:  src.StreamID,
					Format:    src.Format,
				})
			})
		case config.SourceSRTListener:
			live = true
			srv := srtingest.NewServer(src.Address, src.Format, registry, nil)
			g.Go(func() error { return srv.Start(ctx) })
		}
	}

	g.Go(func() error {
		err := local.Wait()
		if !live {
			cancel()
		}
		return err
	})
	if live {
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}
	return g.Wait()
}

func (a *app) decodeFile(ctx context.Context, key string, src config.Source) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return a.decode(ctx, key, f, src.Format)
}

// decode runs a pipeline over one input until it ends.
func (a *app) decode(ctx context.Context, key string, input io.Reader, format ingest.InputFormat) error {
	s, created := a.mgr.Create(key)
	if !created {
		return fmt.Errorf("duplicate stream %q", key)
	}
	defer a.mgr.Remove(key)

	p, err := pipeline.New(key, pipeline.Options{
		Format: format,
		PID:    a.cfg.SDTPID,
		OnUpdate: func(u pipeline.Update) {
			s.Update(u.TSID, u.ONID, u.Services)
			if err := a.out.print(u); err != nil {
				slog.Warn("cannot write update", "stream", key, "error", err)
			}
		},
		Pipe: []pipe.Option{
			pipe.WithStats(a.recorder),
			pipe.WithWarnRate(rate.Limit(a.cfg.WarnRate), a.cfg.WarnBurst),
		},
	}, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	slog.Info("decoding", "stream", key)
	if err := p.Run(ctx, input); err != nil {
		return err
	}
	snap := s.Snapshot()
	slog.Info("stream ended", "stream", key, "updates", snap.Updates, "services", len(snap.Services))
	return nil
}
