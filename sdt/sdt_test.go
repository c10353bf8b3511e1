package sdt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/internal/tstest"
	"github.com/zsiec/siflow/psi"
)

func TestParseEntry(t *testing.T) {
	t.Parallel()
	e := ParseEntry([]byte{0x12, 0x34, 0xFE, 0x9A, 0xBC})
	if e.ServiceID != 0x1234 {
		t.Errorf("ServiceID = 0x%04X, want 0x1234", e.ServiceID)
	}
	if !e.EITSchedule || e.EITPresent {
		t.Errorf("EIT flags = %v/%v, want true/false", e.EITSchedule, e.EITPresent)
	}
	if e.Running != 4 || !e.FreeCA {
		t.Errorf("running = %d, free CA = %v", e.Running, e.FreeCA)
	}
	if e.DescLength != 0xABC {
		t.Errorf("DescLength = 0x%X, want 0xABC", e.DescLength)
	}
}

func TestParseSection(t *testing.T) {
	t.Parallel()
	data := tstest.SDTSection(TableIDActual, 0x0401, 0x233A, 3, 0, 0)
	ref := block.New(data)
	defer ref.Release()

	info, ok := ParseSection(ref)
	if !ok {
		t.Fatal("valid section should parse")
	}
	if info.TSID != 0x0401 || info.ONID != 0x233A || info.Version != 3 {
		t.Errorf("info = %+v", info)
	}

	pat := block.New(tstest.Section(0x00, 1, 0, 0, 0, []byte{0, 1, 0xE0, 0x10}))
	defer pat.Release()
	if _, ok := ParseSection(pat); ok {
		t.Error("PAT section should not parse as SDT")
	}

	short := block.New(data[:HeaderSize-1])
	defer short.Release()
	if _, ok := ParseSection(short); ok {
		t.Error("truncated section should not parse")
	}
}

func TestDescriptors(t *testing.T) {
	t.Parallel()
	loop := tstest.Concat(
		tstest.Descriptor(0x5D, 1, 2, 3),
		tstest.Descriptor(0x48),
		tstest.Descriptor(0x73, 9),
	)
	var tags []uint8
	for d := range Descriptors(loop) {
		tags = append(tags, d.Tag())
	}
	if !bytes.Equal(tags, []byte{0x5D, 0x48, 0x73}) {
		t.Errorf("tags = % X", tags)
	}
	if !ValidLoop(loop) {
		t.Error("loop should be valid")
	}

	truncated := append(tstest.Descriptor(0x5D, 1), 0x4A, 0x05, 0x00)
	var n int
	for range Descriptors(truncated) {
		n++
	}
	if n != 1 {
		t.Errorf("iterated %d descriptors of a truncated loop, want 1", n)
	}
	if ValidLoop(truncated) {
		t.Error("truncated loop should not be valid")
	}
}

func TestParseServiceDescriptor(t *testing.T) {
	t.Parallel()
	d := Descriptor(tstest.ServiceDescriptor(0x01, []byte("BBC"), []byte("BBC ONE")))
	sd, ok := ParseServiceDescriptor(d)
	if !ok {
		t.Fatal("descriptor should be valid")
	}
	if sd.Type != 0x01 || string(sd.Provider) != "BBC" || string(sd.Name) != "BBC ONE" {
		t.Errorf("descriptor = {%d %q %q}", sd.Type, sd.Provider, sd.Name)
	}

	tests := []struct {
		name string
		desc []byte
	}{
		{"empty body", tstest.Descriptor(0x48)},
		{"provider overruns", tstest.Descriptor(0x48, 0x01, 0x05, 'a', 'b')},
		{"name overruns", tstest.Descriptor(0x48, 0x01, 0x01, 'a', 0x04, 'x')},
		{"wrong tag", tstest.Descriptor(0x49, 0x01, 0x00, 0x00)},
	}
	for _, tt := range tests {
		if _, ok := ParseServiceDescriptor(Descriptor(tt.desc)); ok {
			t.Errorf("%s: descriptor should be rejected", tt.name)
		}
	}
}

func buildTable(t *testing.T, sections ...[]byte) *psi.Table {
	t.Helper()
	tbl := &psi.Table{}
	for _, s := range sections {
		if !tbl.Submit(block.New(s)) {
			t.Fatalf("section % X rejected", s[:8])
		}
	}
	t.Cleanup(tbl.Clean)
	return tbl
}

func TestServiceLoopWalksSections(t *testing.T) {
	t.Parallel()
	tbl := buildTable(t,
		tstest.SDTSection(TableIDActual, 1, 2, 0, 0, 1,
			tstest.Service{ID: 10, Descriptors: tstest.Descriptor(0x5D, 7)},
			tstest.Service{ID: 11},
		),
		tstest.SDTSection(TableIDActual, 1, 2, 0, 1, 1,
			tstest.Service{ID: 12, Running: 4},
		),
	)

	loop := NewServiceLoop(tbl)
	var ids []uint16
	var descs [][]byte
	for e, d := range loop.All() {
		ids = append(ids, e.ServiceID)
		descs = append(descs, bytes.Clone(d))
	}
	if err := loop.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(ids) != 3 || ids[0] != 10 || ids[1] != 11 || ids[2] != 12 {
		t.Fatalf("ids = %v", ids)
	}
	if !bytes.Equal(descs[0], []byte{0x5D, 0x01, 0x07}) || descs[1] != nil {
		t.Errorf("descriptor loops = % X", descs)
	}
}

func TestServiceLoopTrailingBytes(t *testing.T) {
	t.Parallel()
	payload := tstest.SDTPayload(2, tstest.Service{ID: 10})
	payload = append(payload, 0x00, 0x0B) // stray bytes, shorter than an entry
	tbl := buildTable(t, tstest.Section(TableIDActual, 1, 0, 0, 0, payload))

	loop := NewServiceLoop(tbl)
	for range loop.All() {
	}
	if !errors.Is(loop.Err(), ErrMalformedTable) {
		t.Fatalf("Err() = %v, want ErrMalformedTable", loop.Err())
	}
}

func TestServiceLoopOverrun(t *testing.T) {
	t.Parallel()
	payload := tstest.SDTPayload(2, tstest.Service{ID: 10, Descriptors: tstest.Descriptor(0x5D, 1, 2)})
	payload[3+4] += 6 // descriptors_loop_length past the CRC
	tbl := buildTable(t, tstest.Section(TableIDActual, 1, 0, 0, 0, payload))

	loop := NewServiceLoop(tbl)
	n := 0
	for range loop.All() {
		n++
	}
	if n != 0 || !errors.Is(loop.Err(), ErrMalformedTable) {
		t.Fatalf("yielded %d entries, Err() = %v", n, loop.Err())
	}
}
