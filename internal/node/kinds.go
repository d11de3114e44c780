package node

import (
	"fmt"
	"math"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/schema"
)

// Root is the table the buffer's leading uoffset points at.
type Root struct {
	Table
	magic string
}

func (r *Root) Kind() Kind       { return KindRoot }
func (r *Root) Name() string     { return r.nameOr("Root") }
func (r *Root) TypeName() string { return r.Table.TypeName() }

// Magic returns the file identifier, or "" when the buffer has none.
func (r *Root) Magic() string { return r.magic }

// Object is a table reached through a relative pointer.
type Object struct {
	Table
}

func (o *Object) Kind() Kind   { return KindObject }
func (o *Object) Name() string { return o.nameOr("Object") }

// ObjectArray is a vector of tables sharing one class.
type ObjectArray struct {
	base
	dataOff int
	class   *schema.Class
	entries []*Object
}

func (a *ObjectArray) Kind() Kind   { return KindObjectArray }
func (a *ObjectArray) Name() string { return a.nameOr("???") }

// SetName names the array and renames every entry to name[i].
func (a *ObjectArray) SetName(name string) {
	a.info.Name = name
	for i, e := range a.entries {
		e.SetName(entryName(name, i))
	}
}

func (a *ObjectArray) TypeName() string {
	if a.class == nil {
		return "Object[]"
	}
	return a.class.Name() + "[]"
}

// SetTypeName names the class shared by every entry.
func (a *ObjectArray) SetTypeName(name string) {
	if a.class == nil {
		return
	}
	_ = a.sess.atomic(func() error {
		a.class.SetName(name)
		return nil
	})
}

// Class returns the class shared by the entries.
func (a *ObjectArray) Class() *schema.Class { return a.class }

// DataOffset returns the offset of the vector's length header.
func (a *ObjectArray) DataOffset() int { return a.dataOff }

func (a *ObjectArray) Len() int { return len(a.entries) }

// Entry returns entry i.
func (a *ObjectArray) Entry(i int) (*Object, error) {
	if i < 0 || i >= len(a.entries) {
		return nil, fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, i, len(a.entries))
	}
	return a.entries[i], nil
}

// Entries returns every entry.
func (a *ObjectArray) Entries() []*Object {
	out := make([]*Object, len(a.entries))
	copy(out, a.entries)
	return out
}

// Tables returns every entry's table, the input shape of field analysis.
func (a *ObjectArray) Tables() []*Table {
	out := make([]*Table, len(a.entries))
	for i, e := range a.entries {
		out[i] = &e.Table
	}
	return out
}

func (a *ObjectArray) GetChildIndex(child Node) int {
	for i, e := range a.entries {
		if Node(e) == child {
			return i
		}
	}
	return -1
}

// EntryWithField returns the index of the first entry that has field i,
// or -1.
func (a *ObjectArray) EntryWithField(i int) int {
	for k, e := range a.entries {
		if e.HasField(i) {
			return k
		}
	}
	return -1
}

// EntriesWithField returns the indexes of every entry that has field i.
func (a *ObjectArray) EntriesWithField(i int) []int {
	var out []int
	for k, e := range a.entries {
		if e.HasField(i) {
			out = append(out, k)
		}
	}
	return out
}

// MaxFieldCount returns the entry with the most vtable slots and that
// count. The index is -1 for an empty array.
func (a *ObjectArray) MaxFieldCount() (index, count int) {
	index = -1
	for k, e := range a.entries {
		if n := e.FieldCount(); index < 0 || n > count {
			index, count = k, n
		}
	}
	return index, count
}

// StringArray is a vector of strings.
type StringArray struct {
	base
	dataOff int
	entries []*String
}

func (a *StringArray) Kind() Kind       { return KindStringArray }
func (a *StringArray) Name() string     { return a.nameOr("string[]") }
func (a *StringArray) TypeName() string { return "string[]" }
func (a *StringArray) DataOffset() int  { return a.dataOff }
func (a *StringArray) Len() int         { return len(a.entries) }

func (a *StringArray) Entry(i int) (*String, error) {
	if i < 0 || i >= len(a.entries) {
		return nil, fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, i, len(a.entries))
	}
	return a.entries[i], nil
}

// Values returns the decoded strings.
func (a *StringArray) Values() []string {
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.value
	}
	return out
}

func (a *StringArray) GetChildIndex(child Node) int {
	for i, e := range a.entries {
		if Node(e) == child {
			return i
		}
	}
	return -1
}

// StructArray is a vector of packed fixed-width scalars.
type StructArray struct {
	base
	elem    fbfmt.TypeCode
	dataOff int
	entries []*Scalar
}

func (a *StructArray) Kind() Kind               { return KindStructArray }
func (a *StructArray) Name() string             { return a.nameOr(a.TypeName()) }
func (a *StructArray) TypeName() string         { return fbfmt.FormatType(a.elem, true) }
func (a *StructArray) ElemType() fbfmt.TypeCode { return a.elem }
func (a *StructArray) DataOffset() int          { return a.dataOff }
func (a *StructArray) Len() int                 { return len(a.entries) }

func (a *StructArray) Entry(i int) (*Scalar, error) {
	if i < 0 || i >= len(a.entries) {
		return nil, fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, i, len(a.entries))
	}
	return a.entries[i], nil
}

func (a *StructArray) GetChildIndex(child Node) int {
	for i, e := range a.entries {
		if Node(e) == child {
			return i
		}
	}
	return -1
}

// Scalar is a fixed-width value. The raw little-endian bits are kept and
// reinterpreted on access.
type Scalar struct {
	base
	typ  fbfmt.TypeCode
	bits uint64
}

func (v *Scalar) Kind() Kind             { return KindScalar }
func (v *Scalar) Name() string           { return v.nameOr(v.typ.String()) }
func (v *Scalar) TypeName() string       { return v.typ.String() }
func (v *Scalar) Type() fbfmt.TypeCode   { return v.typ }
func (v *Scalar) GetChildIndex(Node) int { return -1 }
func (v *Scalar) Bits() uint64           { return v.bits }
func (v *Scalar) Uint64() uint64         { return v.bits }
func (v *Scalar) Bool() bool             { return v.bits != 0 }

// Int64 sign-extends the value per its width.
func (v *Scalar) Int64() int64 {
	switch v.typ.Size() {
	case 1:
		return int64(int8(v.bits))
	case 2:
		return int64(int16(v.bits))
	case 4:
		return int64(int32(v.bits))
	}
	return int64(v.bits)
}

// Float64 interprets the bits as IEEE-754 for float types and converts
// integers numerically.
func (v *Scalar) Float64() float64 {
	switch v.typ {
	case fbfmt.TypeFloat32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case fbfmt.TypeFloat64:
		return math.Float64frombits(v.bits)
	}
	if v.typ.IsSigned() {
		return float64(v.Int64())
	}
	return float64(v.bits)
}

// Value returns the value as its natural Go type.
func (v *Scalar) Value() any {
	switch v.typ {
	case fbfmt.TypeBool:
		return v.Bool()
	case fbfmt.TypeInt8:
		return int8(v.bits)
	case fbfmt.TypeUint8:
		return uint8(v.bits)
	case fbfmt.TypeInt16:
		return int16(v.bits)
	case fbfmt.TypeUint16:
		return uint16(v.bits)
	case fbfmt.TypeInt32:
		return int32(v.bits)
	case fbfmt.TypeUint32:
		return uint32(v.bits)
	case fbfmt.TypeInt64:
		return int64(v.bits)
	case fbfmt.TypeFloat32:
		return math.Float32frombits(uint32(v.bits))
	case fbfmt.TypeFloat64:
		return math.Float64frombits(v.bits)
	}
	return v.bits
}

func (v *Scalar) String() string {
	if v.absent {
		return fmt.Sprintf("%s (absent)", v.typ)
	}
	if v.typ.IsFloat() || v.typ == fbfmt.TypeBool {
		return fmt.Sprint(v.Value())
	}
	return fmt.Sprintf("0x%X [%v]", v.bits, v.Value())
}

// String is a length-prefixed UTF-8 string.
type String struct {
	base
	dataOff int
	value   string
}

func (v *String) Kind() Kind             { return KindString }
func (v *String) Name() string           { return v.nameOr("string") }
func (v *String) TypeName() string       { return "string" }
func (v *String) GetChildIndex(Node) int { return -1 }
func (v *String) Value() string          { return v.value }

// DataOffset returns the offset of the string's length prefix.
func (v *String) DataOffset() int { return v.dataOff }

// Union is a table selected by a discriminant byte held in a sibling field.
type Union struct {
	base
	disc      uint8
	typeIndex int
	inner     *Object
}

func (u *Union) Kind() Kind   { return KindUnion }
func (u *Union) Name() string { return u.nameOr("union") }

func (u *Union) TypeName() string {
	if u.inner == nil {
		return "union"
	}
	return fmt.Sprintf("union(%d) %s", u.disc, u.inner.TypeName())
}

func (u *Union) Discriminant() uint8 { return u.disc }
func (u *Union) TypeIndex() int      { return u.typeIndex }

// Inner returns the selected table; nil when absent.
func (u *Union) Inner() *Object { return u.inner }

func (u *Union) GetChildIndex(child Node) int {
	if u.inner != nil && Node(u.inner) == child {
		return 0
	}
	return -1
}
