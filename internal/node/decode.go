package node

import (
	"fmt"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/region"
	"flatcrawl/internal/schema"
	"flatcrawl/internal/vtable"
)

const (
	rootHeaderSize = 4
	maxMagicLength = 4
)

// decoder builds detached nodes with their pending claims. Nothing is
// installed until Session.commit. A probing decoder never creates classes.
type decoder struct {
	s     *Session
	probe bool
}

func (d decoder) class(parent *schema.Class, member, arm int) *schema.Class {
	if d.probe || parent == nil {
		return nil
	}
	return d.s.classes.Lookup(parent, member, arm)
}

func (s *Session) decodeRoot() (*Root, error) {
	buf := s.buf
	table, err := buf.Relative(0)
	if err != nil {
		return nil, fmt.Errorf("root offset: %w", err)
	}
	r := &Root{}
	r.owner = r
	r.sess = s
	r.info = FieldInfo{Type: fbfmt.TypeObject, Size: 4}
	r.claim(0, 4, region.CategoryPointer, "root table offset")
	if table != rootHeaderSize {
		if n := magicLength(buf, rootHeaderSize); n > 0 {
			raw, _ := buf.Bytes(rootHeaderSize, n)
			r.magic = string(raw)
			r.claim(rootHeaderSize, n, region.CategoryMisc, "file identifier")
		}
	}
	d := decoder{s: s}
	if err := d.table(&r.Table, 0, table, s.classes.Root()); err != nil {
		return nil, err
	}
	return r, nil
}

// magicLength counts leading printable ASCII bytes at off (at most 4,
// stopping at NUL).
func magicLength(buf *fbfmt.Buffer, off int) int {
	n := 0
	for n < maxMagicLength {
		c, err := buf.Uint8(off + n)
		if err != nil || c == 0 {
			break
		}
		if c < 0x20 || c > 0x7e {
			return 0
		}
		n++
	}
	return n
}

// table fills t for the data table at tableOff whose pointer lives at slot.
func (d decoder) table(t *Table, slot, tableOff int, class *schema.Class) error {
	buf := d.s.buf
	so, err := buf.Int32(tableOff)
	if err != nil {
		return fmt.Errorf("table at 0x%x: %w", tableOff, err)
	}
	loc := tableOff - int(so)
	vt, err := d.s.vtable(class, loc)
	if err != nil {
		return fmt.Errorf("table at 0x%x: %w", tableOff, err)
	}
	if vt.DataLength < 4 {
		return fmt.Errorf("%w: table at 0x%x has length %d", vtable.ErrMalformed, tableOff, vt.DataLength)
	}
	if !buf.Contains(tableOff, vt.DataLength) {
		return fmt.Errorf("table at 0x%x length %d: %w", tableOff, vt.DataLength, fbfmt.ErrBufferOverrun)
	}
	data := region.Range{Offset: tableOff, Length: vt.DataLength}
	if (region.Range{Offset: loc, Length: vt.Length}).Overlaps(data) {
		return fmt.Errorf("%w: vtable 0x%x overflows into data table 0x%x", vtable.ErrMalformed, loc, tableOff)
	}
	t.sess = d.s
	t.offset = slot
	t.vt = vt
	t.dataOff = tableOff
	t.class = class
	t.children = make([]Node, vt.FieldCount())
	t.claim(tableOff, 4, region.CategoryPointer, "vtable offset")
	t.claimSub(tableOff, vt.DataLength, region.CategoryDataTable, "data table")
	return nil
}

func (d decoder) object(parent Node, info FieldInfo, slot int, class *schema.Class) (*Object, error) {
	tableOff, err := d.s.buf.Relative(slot)
	if err != nil {
		return nil, fmt.Errorf("object pointer at 0x%x: %w", slot, err)
	}
	o := &Object{}
	o.owner = o
	o.parent = parent
	o.info = info
	if err := d.table(&o.Table, slot, tableOff, class); err != nil {
		return nil, err
	}
	o.claim(slot, 4, region.CategoryPointer, "object offset")
	return o, nil
}

func (d decoder) scalar(parent Node, info FieldInfo, off int, t fbfmt.TypeCode) (*Scalar, error) {
	bits, err := d.s.buf.Raw(off, t.Size())
	if err != nil {
		return nil, fmt.Errorf("%s at 0x%x: %w", t, off, err)
	}
	v := &Scalar{typ: t, bits: bits}
	v.sess = d.s
	v.offset = off
	v.parent = parent
	v.info = info
	return v, nil
}

func (d decoder) str(parent Node, info FieldInfo, slot int) (*String, error) {
	buf := d.s.buf
	strOff, err := buf.Relative(slot)
	if err != nil {
		return nil, fmt.Errorf("string pointer at 0x%x: %w", slot, err)
	}
	n, err := buf.Int32(strOff)
	if err != nil {
		return nil, fmt.Errorf("string length at 0x%x: %w", strOff, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: string length %d at 0x%x", ErrImplausibleValue, n, strOff)
	}
	raw, err := buf.Bytes(strOff+4, int(n))
	if err != nil {
		return nil, fmt.Errorf("string data at 0x%x: %w", strOff+4, err)
	}
	v := &String{dataOff: strOff, value: string(raw)}
	v.sess = d.s
	v.offset = slot
	v.parent = parent
	v.info = info
	v.claim(slot, 4, region.CategoryPointer, "string offset")
	v.claim(strOff, 4, region.CategoryValue, "string length")
	end := strOff + 4 + int(n)
	if n > 0 {
		v.claim(strOff+4, int(n), region.CategoryValue, "string data")
	}
	// NUL terminator plus 2-byte alignment; clipped to the buffer.
	pad := fbfmt.Align(end+1, 2)
	if pad > buf.Len() {
		pad = buf.Len()
	}
	if pad > end {
		v.claim(end, pad-end, region.CategoryPadding, "string terminator")
	}
	return v, nil
}

// vector resolves the vector referenced at slot and checks that count
// elements of elemSize bytes fit in the buffer.
func (d decoder) vector(slot, elemSize int) (vecOff, count int, err error) {
	buf := d.s.buf
	vecOff, err = buf.Relative(slot)
	if err != nil {
		return 0, 0, fmt.Errorf("vector pointer at 0x%x: %w", slot, err)
	}
	n, err := buf.Int32(vecOff)
	if err != nil {
		return 0, 0, fmt.Errorf("vector length at 0x%x: %w", vecOff, err)
	}
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: vector length %d at 0x%x", ErrImplausibleValue, n, vecOff)
	}
	if int64(n)*int64(elemSize) > int64(buf.Len()-vecOff-4) {
		return 0, 0, fmt.Errorf("vector at 0x%x: %d x %d bytes: %w", vecOff, n, elemSize, fbfmt.ErrBufferOverrun)
	}
	return vecOff, int(n), nil
}

func (d decoder) arrayBase(b *base, parent Node, info FieldInfo, slot, vecOff int) {
	b.sess = d.s
	b.offset = slot
	b.parent = parent
	b.info = info
	b.claim(slot, 4, region.CategoryPointer, "vector offset")
	b.claim(vecOff, 4, region.CategoryValue, "vector length")
}

func (d decoder) structArray(parent Node, info FieldInfo, slot int, t fbfmt.TypeCode) (*StructArray, error) {
	size := t.Size()
	vecOff, n, err := d.vector(slot, size)
	if err != nil {
		return nil, err
	}
	a := &StructArray{elem: t, dataOff: vecOff}
	d.arrayBase(&a.base, parent, info, slot, vecOff)
	if n > 0 {
		a.claim(vecOff+4, n*size, region.CategoryValue, fmt.Sprintf("%s[%d]", t, n))
	}
	a.entries = make([]*Scalar, n)
	for k := range a.entries {
		e, err := d.scalar(a, FieldInfo{Type: t, Size: size}, vecOff+4+k*size, t)
		if err != nil {
			return nil, err
		}
		a.entries[k] = e
	}
	return a, nil
}

func (d decoder) stringArray(parent Node, info FieldInfo, slot int) (*StringArray, error) {
	vecOff, n, err := d.vector(slot, 4)
	if err != nil {
		return nil, err
	}
	a := &StringArray{dataOff: vecOff}
	d.arrayBase(&a.base, parent, info, slot, vecOff)
	a.entries = make([]*String, n)
	for k := range a.entries {
		e, err := d.str(a, FieldInfo{Type: fbfmt.TypeString, Size: 4}, vecOff+4+4*k)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", k, err)
		}
		a.entries[k] = e
	}
	return a, nil
}

func (d decoder) objectArray(parent Node, info FieldInfo, slot int, class *schema.Class) (*ObjectArray, error) {
	vecOff, n, err := d.vector(slot, 4)
	if err != nil {
		return nil, err
	}
	a := &ObjectArray{dataOff: vecOff, class: class}
	d.arrayBase(&a.base, parent, info, slot, vecOff)
	a.entries = make([]*Object, n)
	for k := range a.entries {
		e, err := d.object(a, FieldInfo{Name: entryName(info.Name, k), Type: fbfmt.TypeObject, Size: 4}, vecOff+4+4*k, class)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", k, err)
		}
		a.entries[k] = e
	}
	return a, nil
}

func entryName(array string, k int) string {
	if array == "" {
		return ""
	}
	return fmt.Sprintf("%s[%d]", array, k)
}
