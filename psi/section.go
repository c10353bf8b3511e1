// Package psi implements MPEG-TS Program Specific Information section
// framing and the aggregation of multi-section tables.
//
// A table is transmitted as up to 256 CRC-protected sections. [Table]
// gathers sections by section number until the declared range is complete;
// decoders keep two tables (the one in effect and the one being gathered)
// and switch only when the gathered one validates and differs.
package psi

import (
	"github.com/zsiec/siflow/block"
)

// Section framing sizes.
const (
	// HeaderSize is the size of a section header with section_syntax_indicator=1.
	HeaderSize = 8
	// CRCSize is the size of the CRC32 trailer.
	CRCSize = 4
	// MaxSectionSize is the maximum size of a PSI section.
	MaxSectionSize = 1024
	// MaxPrivateSectionSize is the maximum size of a private (SI) section.
	MaxPrivateSectionSize = 4096
)

// Header is a parsed section header with section_syntax_indicator=1.
//
// data layout:
// [0]    table_id
// [1-2]  section_syntax_indicator(1) + private(1) + reserved(2) + section_length(12)
// [3-4]  table_id_extension
// [5]    reserved(2) + version(5) + current_next(1)
// [6]    section_number
// [7]    last_section_number
type Header struct {
	TableID       uint8
	Syntax        bool
	Length        int
	TableIDExt    uint16
	Version       uint8
	Current       bool
	SectionNumber uint8
	LastSection   uint8
}

// ParseHeader decodes the first HeaderSize bytes of a section.
func ParseHeader(b []byte) (Header, bool) {
	if len(b) < HeaderSize {
		return Header{}, false
	}
	return Header{
		TableID:       b[0],
		Syntax:        b[1]&0x80 != 0,
		Length:        int(b[1]&0x0F)<<8 | int(b[2]),
		TableIDExt:    uint16(b[3])<<8 | uint16(b[4]),
		Version:       (b[5] >> 1) & 0x1F,
		Current:       b[5]&0x01 != 0,
		SectionNumber: b[6],
		LastSection:   b[7],
	}, true
}

// PeekHeader reads the section header at the start of ref.
func PeekHeader(ref *block.Ref) (Header, bool) {
	var buf [HeaderSize]byte
	b, err := ref.Peek(0, HeaderSize, buf[:])
	if err != nil {
		return Header{}, false
	}
	return ParseHeader(b)
}

// Validate checks the structural consistency of a header against the size
// of the section carrying it.
func (h Header) Validate(size int) bool {
	if !h.Syntax {
		return false
	}
	if h.Length < HeaderSize-3+CRCSize || 3+h.Length > MaxPrivateSectionSize {
		return false
	}
	if size != 3+h.Length {
		return false
	}
	return h.SectionNumber <= h.LastSection
}

func peekLength(ref *block.Ref) (int, bool) {
	var buf [3]byte
	b, err := ref.Peek(0, 3, buf[:])
	if err != nil {
		return 0, false
	}
	return int(b[1]&0x0F)<<8 | int(b[2]), true
}
