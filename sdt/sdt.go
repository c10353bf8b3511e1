// Package sdt decodes the DVB Service Description Table.
//
// Section layout after the 8-byte PSI header (table_id_extension carries
// the transport_stream_id):
//
//	original_network_id        16 bits
//	reserved_future_use         8 bits
//	service loop until the CRC:
//	  service_id               16 bits
//	  reserved_future_use       6 bits
//	  EIT_schedule_flag         1 bit
//	  EIT_present_following     1 bit
//	  running_status            3 bits
//	  free_CA_mode              1 bit
//	  descriptors_loop_length  12 bits
//	  descriptors
package sdt

import (
	"errors"
	"fmt"
	"iter"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/psi"
)

// Wire constants.
const (
	HeaderSize     = psi.HeaderSize + 3
	ServiceSize    = 5
	TableIDActual  = 0x42
	TableIDOther   = 0x46
	TagService     = 0x48
	descHeaderSize = 2
)

// ErrMalformedTable reports a service loop that does not end exactly at the
// CRC of its section.
var ErrMalformedTable = errors.New("sdt: malformed service loop")

// SectionInfo is the SDT specific part of a section header.
type SectionInfo struct {
	psi.Header
	TSID uint16
	ONID uint16
}

// ParseSection validates the structure of an SDT section and returns its
// identifiers. It does not check the CRC.
func ParseSection(ref *block.Ref) (SectionInfo, bool) {
	var buf [HeaderSize]byte
	b, err := ref.Peek(0, HeaderSize, buf[:])
	if err != nil {
		return SectionInfo{}, false
	}
	h, ok := psi.ParseHeader(b)
	if !ok || !h.Validate(ref.Size()) {
		return SectionInfo{}, false
	}
	if h.TableID != TableIDActual && h.TableID != TableIDOther {
		return SectionInfo{}, false
	}
	if ref.Size() < HeaderSize+psi.CRCSize {
		return SectionInfo{}, false
	}
	return SectionInfo{
		Header: h,
		TSID:   h.TableIDExt,
		ONID:   uint16(b[8])<<8 | uint16(b[9]),
	}, true
}

// Entry holds the fixed fields of a service loop entry.
type Entry struct {
	ServiceID   uint16
	EITSchedule bool
	EITPresent  bool
	Running     uint8
	FreeCA      bool
	DescLength  int
}

// ParseEntry decodes the ServiceSize bytes of b.
func ParseEntry(b []byte) Entry {
	_ = b[ServiceSize-1]
	return Entry{
		ServiceID:   uint16(b[0])<<8 | uint16(b[1]),
		EITSchedule: b[2]&0x02 != 0,
		EITPresent:  b[2]&0x01 != 0,
		Running:     b[3] >> 5,
		FreeCA:      b[3]&0x10 != 0,
		DescLength:  int(b[3]&0x0F)<<8 | int(b[4]),
	}
}

// ServiceLoop walks the service entries of a complete table. Like
// bufio.Scanner, errors are reported by Err once the walk stops.
type ServiceLoop struct {
	tbl *psi.Table
	err error
}

// NewServiceLoop returns a walker over the sections of tbl.
func NewServiceLoop(tbl *psi.Table) *ServiceLoop {
	return &ServiceLoop{tbl: tbl}
}

// All yields every service entry with its descriptor loop, in section
// order. The loop slice is only valid until the next iteration.
func (l *ServiceLoop) All() iter.Seq2[Entry, []byte] {
	return func(yield func(Entry, []byte) bool) {
		l.err = nil
		var hdr [ServiceSize]byte
		var descBuf []byte
		for num, sec := range l.tbl.Sections() {
			end := sec.Size() - psi.CRCSize
			off := HeaderSize
			if end < off {
				l.err = fmt.Errorf("%w: section %d too short", ErrMalformedTable, num)
				return
			}
			for off+ServiceSize <= end {
				b, err := sec.Peek(off, ServiceSize, hdr[:])
				if err != nil {
					l.err = fmt.Errorf("section %d: %w", num, err)
					return
				}
				e := ParseEntry(b)
				start := off + ServiceSize
				if start+e.DescLength > end {
					l.err = fmt.Errorf("%w: section %d: service 0x%04x overruns the CRC", ErrMalformedTable, num, e.ServiceID)
					return
				}
				var loop []byte
				if e.DescLength > 0 {
					if cap(descBuf) < e.DescLength {
						descBuf = make([]byte, e.DescLength)
					}
					if loop, err = sec.Peek(start, e.DescLength, descBuf[:e.DescLength]); err != nil {
						l.err = fmt.Errorf("section %d: %w", num, err)
						return
					}
				}
				if !yield(e, loop) {
					return
				}
				off = start + e.DescLength
			}
			if off != end {
				l.err = fmt.Errorf("%w: section %d: %d stray bytes before the CRC", ErrMalformedTable, num, end-off)
				return
			}
		}
	}
}

// Err returns the error that stopped the last walk, if any.
func (l *ServiceLoop) Err() error { return l.err }

// Descriptor is a raw descriptor including its tag and length bytes.
type Descriptor []byte

// Tag returns the descriptor tag.
func (d Descriptor) Tag() uint8 { return d[0] }

// Payload returns the descriptor body.
func (d Descriptor) Payload() []byte { return d[descHeaderSize:] }

// Descriptors yields the descriptors of loop, stopping at the first one
// that does not fit.
func Descriptors(loop []byte) iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		for len(loop) >= descHeaderSize {
			n := descHeaderSize + int(loop[1])
			if n > len(loop) {
				return
			}
			if !yield(Descriptor(loop[:n:n])) {
				return
			}
			loop = loop[n:]
		}
	}
}

// ValidLoop reports whether loop splits exactly into descriptors.
func ValidLoop(loop []byte) bool {
	for len(loop) >= descHeaderSize {
		n := descHeaderSize + int(loop[1])
		if n > len(loop) {
			return false
		}
		loop = loop[n:]
	}
	return len(loop) == 0
}

// ServiceDescriptor is the decoded form of descriptor 0x48. Provider and
// Name are DVB strings, still in their source encoding.
type ServiceDescriptor struct {
	Type     uint8
	Provider []byte
	Name     []byte
}

// ParseServiceDescriptor decodes a service descriptor, checking that both
// strings fit in the descriptor.
func ParseServiceDescriptor(d Descriptor) (ServiceDescriptor, bool) {
	if len(d) < descHeaderSize || d.Tag() != TagService {
		return ServiceDescriptor{}, false
	}
	p := d.Payload()
	if len(p) < 3 {
		return ServiceDescriptor{}, false
	}
	plen := int(p[1])
	if 2+plen+1 > len(p) {
		return ServiceDescriptor{}, false
	}
	nlen := int(p[2+plen])
	if 3+plen+nlen > len(p) {
		return ServiceDescriptor{}, false
	}
	return ServiceDescriptor{
		Type:     p[0],
		Provider: p[2 : 2+plen],
		Name:     p[3+plen : 3+plen+nlen],
	}, true
}
