package infer

import (
	"fmt"
	"strings"

	"flatcrawl/internal/vtable"
)

// FieldType groups the broad shapes a field's bytes may take before any
// data is read.
type FieldType uint8

const (
	StructSingle FieldType = 1 << iota
	StructArray
	StructInlined
	Object
	ObjectArray
	ObjectUnion

	FieldUnknown  FieldType = 0
	StructValue             = StructSingle | StructInlined
	StructType              = StructSingle | StructArray | StructInlined
	ReferenceType           = Object | ObjectArray | ObjectUnion
	FieldAll                = StructType | ReferenceType
)

var fieldTypeNames = []struct {
	t    FieldType
	name string
}{
	{StructSingle, "struct"},
	{StructArray, "struct[]"},
	{StructInlined, "inline"},
	{Object, "object"},
	{ObjectArray, "object[]"},
	{ObjectUnion, "union"},
}

func (f FieldType) String() string {
	if f == FieldUnknown {
		return "unknown"
	}
	var parts []string
	for _, n := range fieldTypeNames {
		if f&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// SizeRange is the merged byte size of one field across every observed
// instance.
type SizeRange struct {
	Min       int  `json:"min" yaml:"min"`
	Max       int  `json:"max" yaml:"max"`
	Uncertain bool `json:"uncertain" yaml:"uncertain"`
}

func newSizeRange(b vtable.Bound) *SizeRange {
	return &SizeRange{Min: b.Min, Max: b.Max, Uncertain: !b.Certain}
}

// Contradicts reports whether b disagrees with a size already known to be
// exact: either b is certain of a different size, or b leaves less room
// than the exact size needs.
func (r *SizeRange) Contradicts(b vtable.Bound) bool {
	if r.Uncertain {
		return false
	}
	return b.Max < r.Max || (b.Certain && b.Max != r.Max)
}

// Observe narrows the range with another instance's bound. The range
// never widens: the minimum only grows and the maximum only shrinks. A
// field is certain once any instance was certain of it.
func (r *SizeRange) Observe(b vtable.Bound) {
	if b.Max < r.Max {
		r.Max = b.Max
	}
	if b.Min > r.Min {
		r.Min = b.Min
	}
	r.Uncertain = r.Uncertain && !b.Certain
}

// Plausible reports whether a value of n bytes fits the range.
func (r *SizeRange) Plausible(n int) bool { return n >= r.Min && n <= r.Max }

// Guess derives the broad shapes the range allows. A 4-byte slot may hold
// anything, since every reference is a 4-byte offset.
func (r *SizeRange) Guess() FieldType {
	switch {
	case r.Min <= 4 && r.Max >= 4:
		return FieldAll
	case r.Min == 6 && r.Max == 6:
		return StructInlined
	case r.Max == 1:
		return StructSingle
	case r.Max < 4:
		return StructValue
	case r.Min > 8:
		return StructInlined
	default:
		return StructValue
	}
}

// Summary renders the range as "4", or "1..4?" while still uncertain.
func (r *SizeRange) Summary() string {
	if r.Uncertain && r.Min != r.Max {
		return fmt.Sprintf("%d..%d?", r.Min, r.Max)
	}
	return fmt.Sprint(r.Max)
}
