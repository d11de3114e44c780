// Package vtable decodes FlatBuffers vtables without a schema.
//
// Layout (little-endian):
//
//	+0x00: vtable length  uint16 (bytes, includes this 4-byte header)
//	+0x02: table length   uint16 (bytes of the data table, includes its soffset)
//	+0x04: field offsets  [n]int16, n = (vtable length - 4) / 2; 0 = absent
//
// Field sizes are not stored. They are derived by walking present fields
// from the highest offset down, each field ending where the next-higher one
// starts and the highest ending at the table length. The highest field's
// size therefore includes any trailing padding.
package vtable

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"flatcrawl/internal/fbfmt"
)

var (
	ErrMalformed       = errors.New("vtable: malformed")
	ErrFieldOutOfRange = errors.New("vtable: field offset beyond data table")
)

const headerSize = 4

// Field is one vtable slot.
type Field struct {
	Index  int `json:"index"`
	Offset int `json:"offset"` // relative to the data table start; 0 = absent
	Size   int `json:"size"`   // derived; 0 when absent
}

// Present reports whether the field is stored in the data table.
func (f Field) Present() bool { return f.Offset != 0 }

// Order classifies how field sizes progress with ascending offset.
type Order int

const (
	OrderIncreasing Order = iota
	OrderDecreasing
	OrderMixed
)

func (o Order) String() string {
	switch o {
	case OrderIncreasing:
		return "increasing"
	case OrderDecreasing:
		return "decreasing"
	default:
		return "mixed"
	}
}

// VTable is a decoded vtable. Offsets never change after Decode; only the
// derived sizes may be narrowed by Narrow.
type VTable struct {
	Location   int     `json:"location"`
	Length     int     `json:"length"`
	DataLength int     `json:"data_length"`
	Fields     []Field `json:"fields"`
}

// Decode parses the vtable at offset.
func Decode(buf *fbfmt.Buffer, offset int) (*VTable, error) {
	length, err := buf.Uint16(offset)
	if err != nil {
		return nil, fmt.Errorf("%w: header at 0x%x: %w", ErrMalformed, offset, err)
	}
	dataLen, err := buf.Uint16(offset + 2)
	if err != nil {
		return nil, fmt.Errorf("%w: header at 0x%x: %w", ErrMalformed, offset, err)
	}
	if length < headerSize {
		return nil, fmt.Errorf("%w: length %d at 0x%x below header size", ErrMalformed, length, offset)
	}
	if length%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d at 0x%x", ErrMalformed, length, offset)
	}
	if !buf.Contains(offset, int(length)) {
		return nil, fmt.Errorf("%w: length %d at 0x%x exceeds buffer (%d bytes)", ErrMalformed, length, offset, buf.Len())
	}

	vt := &VTable{
		Location:   offset,
		Length:     int(length),
		DataLength: int(dataLen),
		Fields:     make([]Field, (int(length)-headerSize)/2),
	}
	for i := range vt.Fields {
		rel, err := buf.Int16(offset + headerSize + 2*i)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %w", ErrMalformed, i, err)
		}
		if rel < 0 || (rel != 0 && int(rel) >= vt.DataLength) {
			return nil, fmt.Errorf("%w: field %d offset 0x%x, table length 0x%x", ErrFieldOutOfRange, i, rel, vt.DataLength)
		}
		vt.Fields[i] = Field{Index: i, Offset: int(rel)}
	}
	vt.deriveSizes()
	return vt, nil
}

func (vt *VTable) deriveSizes() {
	desc := vt.presentIndexes()
	sort.SliceStable(desc, func(a, b int) bool {
		return vt.Fields[desc[a]].Offset > vt.Fields[desc[b]].Offset
	})
	end := vt.DataLength
	last := 0
	for _, i := range desc {
		f := &vt.Fields[i]
		if f.Offset == end {
			// Two slots sharing one offset share its size.
			f.Size = last
			continue
		}
		f.Size = end - f.Offset
		last = f.Size
		end = f.Offset
	}
}

func (vt *VTable) presentIndexes() []int {
	var out []int
	for i, f := range vt.Fields {
		if f.Present() {
			out = append(out, i)
		}
	}
	return out
}

// FieldCount returns the number of slots (present or not).
func (vt *VTable) FieldCount() int { return len(vt.Fields) }

// HasField reports whether slot i exists and is present.
func (vt *VTable) HasField(i int) bool {
	return i >= 0 && i < len(vt.Fields) && vt.Fields[i].Present()
}

// PresentCount returns the number of populated slots.
func (vt *VTable) PresentCount() int {
	n := 0
	for _, f := range vt.Fields {
		if f.Present() {
			n++
		}
	}
	return n
}

// FieldIndex returns the slot index storing data at the given relative offset.
func (vt *VTable) FieldIndex(offset int) (int, error) {
	if offset == 0 {
		return -1, fmt.Errorf("vtable: offset 0 denotes an absent field")
	}
	for i, f := range vt.Fields {
		if f.Offset == offset {
			return i, nil
		}
	}
	return -1, fmt.Errorf("vtable: no field at offset 0x%x", offset)
}

// Ordered returns the present fields sorted by ascending offset.
func (vt *VTable) Ordered() []Field {
	var out []Field
	for _, f := range vt.Fields {
		if f.Present() {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Offset < out[b].Offset })
	return out
}

// Order classifies the present fields' size progression.
func (vt *VTable) Order() Order {
	return Classify(vt.Ordered())
}

// Classify classifies fields sorted by ascending offset.
func Classify(asc []Field) Order {
	inc, dec := true, true
	for k := 1; k < len(asc); k++ {
		if asc[k].Size < asc[k-1].Size {
			inc = false
		}
		if asc[k].Size > asc[k-1].Size {
			dec = false
		}
	}
	switch {
	case inc:
		return OrderIncreasing
	case dec:
		return OrderDecreasing
	default:
		return OrderMixed
	}
}

// Highest returns the index of the present field with the largest offset,
// or -1 when no field is present.
func (vt *VTable) Highest() int {
	best := -1
	for i, f := range vt.Fields {
		if f.Present() && (best < 0 || f.Offset > vt.Fields[best].Offset) {
			best = i
		}
	}
	return best
}

// Narrow lowers the derived size of slot i. Larger sizes are ignored.
// It reports whether the size changed.
func (vt *VTable) Narrow(i, size int) bool {
	if !vt.HasField(i) || size <= 0 || size >= vt.Fields[i].Size {
		return false
	}
	vt.Fields[i].Size = size
	return true
}

// End returns the offset one past the vtable.
func (vt *VTable) End() int { return vt.Location + vt.Length }

const fieldsPerLine = 8

// FieldOrder renders present fields by ascending offset, shifted by bias.
func (vt *VTable) FieldOrder(bias int) string {
	return formatFields(vt.Ordered(), bias)
}

func formatFields(fields []Field, bias int) string {
	var sb strings.Builder
	for n, f := range fields {
		if n%fieldsPerLine == 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%02d: %04X  ", f.Index, f.Offset+bias)
	}
	return sb.String()
}

func (vt *VTable) String() string {
	return fmt.Sprintf("VTable @ 0x%X\nVTable Size: %d\nTable Size: %d\nFields: %d: %s",
		vt.Location, vt.Length, vt.DataLength, len(vt.Fields), formatFields(vt.Fields, 0))
}
