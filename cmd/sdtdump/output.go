package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zsiec/siflow/internal/pipeline"
	"github.com/zsiec/siflow/sdt"
)

// printer writes service list updates from any number of inputs.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, json: format == "json"}
}

func (p *printer) print(u pipeline.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err
	}
	_, err := io.WriteString(p.w, formatText(u))
	return err
}

func formatText(u pipeline.Update) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s tsid=0x%04X onid=0x%04X services=%d\n", u.Stream, u.TSID, u.ONID, len(u.Services))
	for _, s := range u.Services {
		fmt.Fprintf(&b, "  0x%04X type=0x%02X %-24q provider=%q %s", s.ID, s.Type, s.Name, s.Provider, sdt.RunningStatusString(s.Running))
		if s.Scrambled {
			b.WriteString(" scrambled")
		}
		if eit := eitFlags(s); eit != "" {
			b.WriteString(" eit=" + eit)
		}
		if len(s.Descriptors) > 0 {
			fmt.Fprintf(&b, " descriptors=%d", len(s.Descriptors))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func eitFlags(s sdt.Service) string {
	var parts []string
	if s.EIT {
		parts = append(parts, "pf")
	}
	if s.EITSchedule {
		parts = append(parts, "sched")
	}
	return strings.Join(parts, "+")
}
