// Package flow implements flow definitions: attribute maps describing the
// structure of the data travelling through a pipe, or the identity of a
// sub-flow discovered inside it.
//
// Every flow definition carries a hierarchical, dot separated definition
// name such as "block.mpegtspsi.mpegtssdt.". Pipes declare the prefix they
// accept and reject anything that does not match it.
package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// MaxAttrSize bounds the size of a single string or blob attribute.
const MaxAttrSize = 0xffff

// Sentinel errors for attribute access.
var (
	ErrNotFound     = errors.New("flow: attribute not found")
	ErrTypeMismatch = errors.New("flow: attribute type mismatch")
	ErrAttrTooLarge = errors.New("flow: attribute too large")
	ErrDefMismatch  = errors.New("flow: definition does not match")
)

// Well-known generic attribute keys.
const (
	KeyDef  = "f.def"
	KeyID   = "f.id"
	KeyName = "f.name"
)

// Def is a flow definition. The zero value is not usable; call New.
type Def struct {
	attrs map[string]any
	limit int
}

// New returns a flow definition with the given definition name.
func New(def string) *Def {
	d := &Def{attrs: make(map[string]any)}
	if def != "" {
		d.attrs[KeyDef] = def
	}
	return d
}

// Dup returns a deep copy of d.
func (d *Def) Dup() *Def {
	out := &Def{attrs: make(map[string]any, len(d.attrs)), limit: d.limit}
	for k, v := range d.attrs {
		switch v := v.(type) {
		case []byte:
			out.attrs[k] = bytes.Clone(v)
		case [][]byte:
			list := make([][]byte, len(v))
			for i, b := range v {
				list[i] = bytes.Clone(b)
			}
			out.attrs[k] = list
		default:
			out.attrs[k] = v
		}
	}
	return out
}

// Merge copies every attribute of other into d, overwriting existing keys.
func (d *Def) Merge(other *Def) {
	for k, v := range other.Dup().attrs {
		d.attrs[k] = v
	}
}

// Equal reports whether d and other carry the same attributes.
func (d *Def) Equal(other *Def) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.attrs) != len(other.attrs) {
		return false
	}
	for k, v := range d.attrs {
		ov, ok := other.attrs[k]
		if !ok {
			return false
		}
		switch v := v.(type) {
		case []byte:
			ob, ok := ov.([]byte)
			if !ok || !bytes.Equal(v, ob) {
				return false
			}
		case [][]byte:
			ol, ok := ov.([][]byte)
			if !ok || !slices.EqualFunc(v, ol, bytes.Equal) {
				return false
			}
		default:
			if v != ov {
				return false
			}
		}
	}
	return true
}

// Keys returns the attribute keys in sorted order.
func (d *Def) Keys() []string {
	return slices.Sorted(maps.Keys(d.attrs))
}

// Delete removes an attribute.
func (d *Def) Delete(key string) {
	delete(d.attrs, key)
}

// SetAttrLimit lowers the size bound of string and blob attributes set on
// d from then on. Zero or a value above MaxAttrSize restores MaxAttrSize.
// The bound is carried over by Dup.
func (d *Def) SetAttrLimit(n int) {
	if n <= 0 || n > MaxAttrSize {
		n = 0
	}
	d.limit = n
}

func (d *Def) attrLimit() int {
	if d.limit > 0 {
		return d.limit
	}
	return MaxAttrSize
}

// SetString sets a string attribute.
func (d *Def) SetString(key, v string) error {
	if len(v) > d.attrLimit() {
		return fmt.Errorf("%w: %s (%d bytes)", ErrAttrTooLarge, key, len(v))
	}
	d.attrs[key] = v
	return nil
}

// StringAttr returns a string attribute.
func (d *Def) StringAttr(key string) (string, error) {
	v, ok := d.attrs[key]
	if !ok {
		return "", ErrNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTypeMismatch, key)
	}
	return s, nil
}

// SetUint sets an unsigned integer attribute.
func (d *Def) SetUint(key string, v uint64) {
	d.attrs[key] = v
}

// UintAttr returns an unsigned integer attribute.
func (d *Def) UintAttr(key string) (uint64, error) {
	v, ok := d.attrs[key]
	if !ok {
		return 0, ErrNotFound
	}
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTypeMismatch, key)
	}
	return n, nil
}

// SetFlag sets a presence-only attribute.
func (d *Def) SetFlag(key string) {
	d.attrs[key] = true
}

// Flag reports whether a flag attribute is present.
func (d *Def) Flag(key string) bool {
	v, ok := d.attrs[key].(bool)
	return ok && v
}

// AddBlob appends an opaque byte string to the blob list stored at key.
func (d *Def) AddBlob(key string, b []byte) error {
	if len(b) > d.attrLimit() {
		return fmt.Errorf("%w: %s (%d bytes)", ErrAttrTooLarge, key, len(b))
	}
	list, _ := d.attrs[key].([][]byte)
	d.attrs[key] = append(list, bytes.Clone(b))
	return nil
}

// Blobs returns the blob list stored at key.
func (d *Def) Blobs(key string) [][]byte {
	list, _ := d.attrs[key].([][]byte)
	return list
}

// SetDef sets the definition name.
func (d *Def) SetDef(def string) error {
	return d.SetString(KeyDef, def)
}

// Def returns the definition name.
func (d *Def) Def() (string, error) {
	return d.StringAttr(KeyDef)
}

// MatchDef checks that the definition name starts with prefix.
func (d *Def) MatchDef(prefix string) error {
	def, err := d.Def()
	if err != nil {
		return fmt.Errorf("%w: no definition", ErrDefMismatch)
	}
	if !strings.HasPrefix(def, prefix) {
		return fmt.Errorf("%w: %q is not %q", ErrDefMismatch, def, prefix)
	}
	return nil
}

// SetID sets the flow id.
func (d *Def) SetID(id uint64) {
	d.SetUint(KeyID, id)
}

// ID returns the flow id.
func (d *Def) ID() (uint64, error) {
	return d.UintAttr(KeyID)
}

// SetName sets the human readable name of the flow.
func (d *Def) SetName(name string) error {
	return d.SetString(KeyName, name)
}

// Name returns the human readable name of the flow.
func (d *Def) Name() (string, error) {
	return d.StringAttr(KeyName)
}

// MarshalJSON encodes the attributes as a JSON object. Blobs are encoded
// as hex strings.
func (d *Def) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.attrs))
	for k, v := range d.attrs {
		switch v := v.(type) {
		case []byte:
			out[k] = fmt.Sprintf("%x", v)
		case [][]byte:
			list := make([]string, len(v))
			for i, b := range v {
				list[i] = fmt.Sprintf("%x", b)
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}
