package psi

import (
	"iter"

	"github.com/zsiec/siflow/block"
)

// Table gathers the sections of one PSI table. The zero value is an empty
// table ready for use.
//
// A Table owns the section blocks it holds: Submit takes ownership of the
// submitted block in every case, and Clean releases everything.
type Table struct {
	sections [256]*block.Ref
	header   Header
	present  bool
}

// Init resets the table to empty without releasing sections. It is used on
// a table whose sections were moved away with Copy.
func (t *Table) Init() {
	*t = Table{}
}

// Clean releases every section held and empties the table.
func (t *Table) Clean() {
	for i, s := range t.sections {
		if s != nil {
			s.Release()
			t.sections[i] = nil
		}
	}
	t.Init()
}

// Empty reports whether the table holds no section.
func (t *Table) Empty() bool {
	return !t.present
}

// Submit stores a section in the slot given by its section number,
// replacing a previous occupant. It returns false, releasing ref and leaving
// the table untouched, when the section fails structural prechecks or
// belongs to a different table id. A section announcing another version,
// another table id extension or another last section number restarts the
// table from scratch.
func (t *Table) Submit(ref *block.Ref) bool {
	h, ok := PeekHeader(ref)
	if !ok || !h.Validate(ref.Size()) || !h.Current {
		ref.Release()
		return false
	}
	if t.present {
		if h.TableID != t.header.TableID {
			ref.Release()
			return false
		}
		if h.Version != t.header.Version ||
			h.TableIDExt != t.header.TableIDExt ||
			h.LastSection != t.header.LastSection {
			t.Clean()
		}
	}
	if !t.present {
		t.header = h
		t.present = true
	}
	if old := t.sections[h.SectionNumber]; old != nil {
		old.Release()
	}
	t.sections[h.SectionNumber] = ref
	return true
}

// Complete reports whether every section from 0 to the last section number
// is present.
func (t *Table) Complete() bool {
	if !t.present {
		return false
	}
	for i := 0; i <= int(t.header.LastSection); i++ {
		if t.sections[i] == nil {
			return false
		}
	}
	return true
}

// Validate reports whether the table is complete and every section passes
// its CRC check.
func (t *Table) Validate() bool {
	if !t.Complete() {
		return false
	}
	for _, s := range t.Sections() {
		if !CheckCRC(s) {
			return false
		}
	}
	return true
}

// Equal reports whether two complete tables carry byte-identical sections.
func (t *Table) Equal(other *Table) bool {
	if !t.Complete() || !other.Complete() {
		return false
	}
	if t.header.LastSection != other.header.LastSection {
		return false
	}
	for i := 0; i <= int(t.header.LastSection); i++ {
		if !block.Equal(t.sections[i], other.sections[i]) {
			return false
		}
	}
	return true
}

// Copy moves the sections of src into t. t must be empty; src is left
// holding stale references and must be reset with Init.
func (t *Table) Copy(src *Table) {
	*t = *src
}

// Header returns the header of the first section received for the table.
func (t *Table) Header() (Header, bool) {
	return t.header, t.present
}

// Sections iterates over the sections 0..last in order, skipping missing
// ones.
func (t *Table) Sections() iter.Seq2[int, *block.Ref] {
	return func(yield func(int, *block.Ref) bool) {
		if !t.present {
			return
		}
		for i := 0; i <= int(t.header.LastSection); i++ {
			s := t.sections[i]
			if s == nil {
				continue
			}
			if !yield(i, s) {
				return
			}
		}
	}
}
