// Package region tracks which bytes of a buffer have a committed
// interpretation and rejects conflicting reinterpretations.
package region

import (
	"errors"
	"fmt"
)

// Category classifies what a claimed range holds.
type Category int

const (
	CategoryNone Category = iota
	CategoryValue
	CategoryDataTable
	CategoryVTable
	CategoryPointer
	CategoryPadding
	CategoryMisc
	CategoryUnknown // report-only: unclaimed bytes
)

var categoryNames = [...]string{
	CategoryNone:      "none",
	CategoryValue:     "value",
	CategoryDataTable: "data_table",
	CategoryVTable:    "vtable",
	CategoryPointer:   "pointer",
	CategoryPadding:   "padding",
	CategoryMisc:      "misc",
	CategoryUnknown:   "unknown",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", int(c))
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Range is a claimed byte span. Sub ranges are informational (e.g. the
// extent of a data table whose bytes are claimed field by field) and never
// take part in overlap checks.
type Range struct {
	Offset      int      `json:"offset" yaml:"offset"`
	Length      int      `json:"length" yaml:"length"`
	Category    Category `json:"category" yaml:"category"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Sub         bool     `json:"sub,omitempty" yaml:"sub,omitempty"`
}

// End returns one past the last byte.
func (r Range) End() int { return r.Offset + r.Length }

// Overlaps reports whether r and o share at least one byte.
func (r Range) Overlaps(o Range) bool {
	return r.Offset < o.End() && o.Offset < r.End()
}

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	return o.Offset >= r.Offset && o.End() <= r.End()
}

// hard reports whether r takes part in conflict detection.
func (r Range) hard() bool {
	return !r.Sub && r.Category != CategoryPadding
}

func (r Range) String() string {
	s := fmt.Sprintf("[0x%X..0x%X) (Length: %3d) %s", r.Offset, r.End(), r.Length, r.Category)
	if r.Description != "" {
		s += " " + r.Description
	}
	return s
}

// ErrOverlap matches every *OverlapError.
var ErrOverlap = errors.New("region: overlapping claim")

// OverlapError names both sides of a conflicting claim.
type OverlapError struct {
	Claim    Range
	Existing Range
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("region: %s would overlap protected memory at %s", e.Claim, e.Existing)
}

func (e *OverlapError) Is(target error) bool { return target == ErrOverlap }
