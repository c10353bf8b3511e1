package sdt

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/dvbtext"
	"github.com/zsiec/siflow/flow"
	"github.com/zsiec/siflow/pipe"
	"github.com/zsiec/siflow/psi"
)

// ExpectedFlowDef is the input flow definition prefix accepted by the
// decoder.
const ExpectedFlowDef = "block.mpegtspsi.mpegtssdt."

// Signature identifies decoder pipes in local commands.
const Signature uint32 = 0x73647464 // "sdtd"

// serviceDef is the definition of control and per-service flows.
const serviceDef = "void."

type manager struct{}

var decoderManager manager

// Manager returns the manager of SDT decoder pipes.
func Manager() pipe.Manager { return decoderManager }

func (manager) Name() string      { return "ts_sdtd" }
func (manager) Signature() uint32 { return Signature }

// Alloc creates a decoder. Only pipe.SignatureVoid is accepted.
func (m manager) Alloc(probe pipe.Probe, sig uint32, opts ...pipe.Option) (pipe.Pipe, error) {
	if sig != pipe.SignatureVoid {
		return nil, fmt.Errorf("%w: unexpected signature 0x%08x", pipe.ErrAlloc, sig)
	}
	d := &Decoder{tsid: -1, onid: -1}
	d.Init(d, m, probe, pipe.NewOptions(opts...), d.free)
	d.sdt.Init()
	d.next.Init()
	d.ThrowReady()
	return d, nil
}

// Decoder reassembles SDT sections into tables and exposes one sub-flow
// per service of the table in effect. It is a split pipe: observers are
// told about changes with pipe.EventSplitUpdate and enumerate the services
// with pipe.SplitIterate. The output only receives the control flow
// definition, announcing the transport stream and original network ids.
type Decoder struct {
	pipe.Base

	sdt  psi.Table
	next psi.Table

	// -1 until the first table is accepted.
	tsid int
	onid int

	services []*flow.Def
	conv     dvbtext.Converter
}

// TSID returns the transport_stream_id of the table in effect, or -1.
func (d *Decoder) TSID() int { return d.tsid }

// ONID returns the original_network_id of the table in effect, or -1.
func (d *Decoder) ONID() int { return d.onid }

// Input consumes one SDT section.
func (d *Decoder) Input(ref *block.Ref) {
	if d.FlowDefInput() == nil {
		d.Warn("received section before flow definition")
		ref.Release()
		return
	}

	info, ok := ParseSection(ref)
	if !ok {
		d.Warn("invalid SDT section received", "size", ref.Size())
		d.Count("invalid_section")
		ref.Release()
		return
	}

	if !d.next.Submit(ref) {
		d.Warn("invalid SDT section received", "section", info.SectionNumber)
		d.Count("invalid_section")
		return
	}
	if !d.next.Complete() {
		return
	}

	if d.sdt.Validate() && d.sdt.Equal(&d.next) {
		d.resetNext()
		d.Count("unchanged_table")
		return
	}

	if !d.next.Validate() {
		d.Warn("invalid SDT table received", "version", info.Version, "reason", "crc")
		d.Count("invalid_table")
		d.resetNext()
		return
	}

	services, err := d.parseServices()
	if err != nil {
		d.resetNext()
		if errors.Is(err, flow.ErrAttrTooLarge) {
			d.ThrowFatal(fmt.Errorf("%w: %w", pipe.ErrAlloc, err))
			return
		}
		d.Warn("invalid SDT table received", "version", info.Version, "error", err)
		d.Count("invalid_table")
		return
	}

	if int(info.TSID) != d.tsid || int(info.ONID) != d.onid {
		if err := d.announce(info.TSID, info.ONID); err != nil {
			d.resetNext()
			d.ThrowFatal(err)
			return
		}
	}

	d.services = services
	d.sdt.Clean()
	d.sdt.Copy(&d.next)
	d.next.Init()

	d.Log().Debug("new SDT", "tsid", info.TSID, "version", info.Version, "services", len(services))
	d.Count("table_switch")
	d.Gauge("services", float64(len(services)))
	d.ThrowSplitUpdate()
}

func (d *Decoder) resetNext() {
	d.next.Clean()
	d.next.Init()
}

// announce publishes the control flow definition for new stream ids and
// forces it downstream.
func (d *Decoder) announce(tsid, onid uint16) error {
	attr := flow.New(serviceDef)
	attr.SetID(uint64(tsid))
	attr.SetONID(onid)
	d.tsid, d.onid = int(tsid), int(onid)
	def := d.StoreFlowDefAttr(attr)
	if def == nil {
		return fmt.Errorf("%w: no input flow definition", pipe.ErrAlloc)
	}
	d.StoreFlowDef(def)
	d.Forward(nil)
	return nil
}

// parseServices builds the flow definitions of every service of the next
// table. Nothing is published unless the whole table parses.
func (d *Decoder) parseServices() ([]*flow.Def, error) {
	loop := NewServiceLoop(&d.next)
	var services []*flow.Def
	for e, descs := range loop.All() {
		def := d.FlowDefInput().Dup()
		def.SetAttrLimit(d.AttrLimit())
		if err := def.SetDef(serviceDef); err != nil {
			return nil, err
		}
		def.SetID(uint64(e.ServiceID))
		if e.EITPresent {
			def.SetEIT()
			if e.EITSchedule {
				def.SetEITSchedule()
			}
		}
		def.SetRunningStatus(e.Running)
		if e.FreeCA {
			def.SetScrambled()
		}
		if err := d.parseDescriptors(def, e.ServiceID, descs); err != nil {
			return nil, err
		}
		services = append(services, def)
	}
	if err := loop.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (d *Decoder) parseDescriptors(def *flow.Def, sid uint16, loop []byte) error {
	for desc := range Descriptors(loop) {
		if desc.Tag() != TagService {
			if err := def.AddSDTDescriptor(desc); err != nil {
				return err
			}
			continue
		}
		sd, ok := ParseServiceDescriptor(desc)
		if !ok {
			d.Warn("invalid descriptor", "tag", fmt.Sprintf("0x%x", desc.Tag()), "service_id", sid)
			continue
		}
		if err := def.SetName(d.conv.Decode(sd.Name)); err != nil {
			return err
		}
		if err := def.SetProviderName(d.conv.Decode(sd.Provider)); err != nil {
			return err
		}
		def.SetServiceType(sd.Type)
	}
	if !ValidLoop(loop) {
		d.Warn("truncated descriptor loop", "service_id", sid)
	}
	return nil
}

// Control handles the output commands, input flow definitions and split
// iteration.
func (d *Decoder) Control(cmd pipe.Command) error {
	if err := d.ControlOutput(cmd); !errors.Is(err, pipe.ErrUnhandled) {
		return err
	}
	switch c := cmd.(type) {
	case *pipe.SetFlowDefCmd:
		return d.setFlowDef(c.FlowDef)
	case *pipe.SplitIterateCmd:
		next, err := d.iterate(c.FlowDef)
		c.FlowDef = next
		return err
	}
	return pipe.ErrUnhandled
}

func (d *Decoder) setFlowDef(def *flow.Def) error {
	if def == nil {
		return pipe.ErrInvalid
	}
	if err := def.MatchDef(ExpectedFlowDef); err != nil {
		return fmt.Errorf("%w: %w", pipe.ErrInvalid, err)
	}
	merged := d.StoreFlowDefInput(def.Dup())
	if d.FlowDefAttr() != nil && merged != nil {
		d.StoreFlowDef(merged)
		d.Forward(nil)
	}
	return nil
}

// iterate returns the service following prev. A prev that is not part of
// the current list, typically kept across a table switch, is rejected.
func (d *Decoder) iterate(prev *flow.Def) (*flow.Def, error) {
	i := -1
	if prev != nil {
		if i = slices.Index(d.services, prev); i < 0 {
			return nil, pipe.ErrInvalid
		}
	}
	if i+1 >= len(d.services) {
		return nil, nil
	}
	return d.services[i+1], nil
}

// Services returns a snapshot of the services of the table in effect.
func (d *Decoder) Services() []Service {
	out := make([]Service, 0, len(d.services))
	for _, def := range d.services {
		out = append(out, ServiceFromFlowDef(def))
	}
	return out
}

func (d *Decoder) free() {
	d.sdt.Clean()
	d.next.Clean()
	d.services = nil
	d.CleanOutput()
	d.CleanFlowDef()
	d.conv.Reset()
}
