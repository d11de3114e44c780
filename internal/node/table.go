package node

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/region"
	"flatcrawl/internal/schema"
	"flatcrawl/internal/vtable"
)

// Table is the vtable-addressed part shared by Root and Object.
type Table struct {
	base
	vt       *vtable.VTable
	dataOff  int
	class    *schema.Class
	children []Node
	token    schema.Token
	owner    Node // the *Root or *Object embedding this table
}

// VTable returns the decoded vtable.
func (t *Table) VTable() *vtable.VTable { return t.vt }

// DataTableOffset returns the absolute offset of the data table (its
// leading soffset).
func (t *Table) DataTableOffset() int { return t.dataOff }

// Class returns the shared class, nil for absent or probed tables.
func (t *Table) Class() *schema.Class { return t.class }

// FieldCount returns the number of vtable slots.
func (t *Table) FieldCount() int { return t.vt.FieldCount() }

// HasField reports whether slot i is present.
func (t *Table) HasField(i int) bool { return t.vt.HasField(i) }

// Field returns the cached child at i, or nil if it was never read.
func (t *Table) Field(i int) Node {
	if i < 0 || i >= len(t.children) {
		return nil
	}
	return t.children[i]
}

// Children returns the cached children (nil for unread slots).
func (t *Table) Children() []Node {
	out := make([]Node, len(t.children))
	copy(out, t.children)
	return out
}

// GetChildIndex returns the slot holding child, or -1.
func (t *Table) GetChildIndex(child Node) int {
	if child == nil {
		return -1
	}
	for i, c := range t.children {
		if c == child {
			return i
		}
	}
	return -1
}

// attached fails for tables decoded by Probe, which have no class to
// commit to.
func (t *Table) attached() error {
	if t.class == nil {
		return fmt.Errorf("%w: table at 0x%x is detached", ErrDetached, t.dataOff)
	}
	return nil
}

func (t *Table) checkIndex(i int) error {
	if i < 0 || i >= t.vt.FieldCount() {
		return fmt.Errorf("%w: field %d, table at 0x%x has %d", ErrIndexOutOfRange, i, t.dataOff, t.vt.FieldCount())
	}
	return nil
}

// GetFieldOffset returns the absolute offset of field i's bytes.
func (t *Table) GetFieldOffset(i int) (int, error) {
	if err := t.checkIndex(i); err != nil {
		return 0, err
	}
	if !t.vt.HasField(i) {
		return 0, fmt.Errorf("%w: field %d of table at 0x%x", ErrFieldNotPresent, i, t.dataOff)
	}
	return t.dataOff + t.vt.Fields[i].Offset, nil
}

// GetReferenceOffset resolves the relative pointer stored in field i.
func (t *Table) GetReferenceOffset(i int) (int, error) {
	fo, err := t.GetFieldOffset(i)
	if err != nil {
		return 0, err
	}
	return t.sess.buf.Relative(fo)
}

// ReadField reads field i as a single value of type typ and commits the
// interpretation: the child is cached, its bytes are claimed and the type
// is pushed to every sibling of the shared class.
func (t *Table) ReadField(i int, typ fbfmt.TypeCode) (Node, error) {
	return t.read(i, typ, false)
}

// ReadArrayField reads field i as a vector of typ.
func (t *Table) ReadArrayField(i int, typ fbfmt.TypeCode) (Node, error) {
	return t.read(i, typ, true)
}

// Read dispatches to ReadField or ReadArrayField.
func (t *Table) Read(i int, typ fbfmt.TypeCode, asArray bool) (Node, error) {
	return t.read(i, typ, asArray)
}

func (t *Table) read(i int, typ fbfmt.TypeCode, asArray bool) (Node, error) {
	if err := t.checkIndex(i); err != nil {
		return nil, err
	}
	if !typ.Valid() || typ == fbfmt.TypeUnion {
		return nil, fmt.Errorf("%w: %s (use ReadUnion for unions)", ErrUnsupportedType, typ)
	}
	if !t.vt.HasField(i) {
		return t.absent(i, typ, asArray), nil
	}
	if err := t.attached(); err != nil {
		return nil, err
	}
	s := t.sess
	s.log.WithFields(logrus.Fields{"table": fmt.Sprintf("0x%x", t.dataOff), "field": i, "type": fbfmt.FormatType(typ, asArray)}).Debug("read field")

	var out Node
	err := s.atomic(func() error {
		n, err := t.materialize(i, typ, asArray)
		if err != nil {
			return err
		}
		out = n
		return t.class.SetMemberType(i, typ, asArray)
	})
	if err != nil {
		return nil, fmt.Errorf("node: read field %d as %s: %w", i, fbfmt.FormatType(typ, asArray), err)
	}
	return out, nil
}

// materialize returns the cached child at i if it already has the wanted
// type, otherwise releases it and decodes and commits a fresh one.
func (t *Table) materialize(i int, typ fbfmt.TypeCode, asArray bool) (Node, error) {
	if c := t.children[i]; matches(c, typ, asArray) {
		return c, nil
	}
	t.dropChild(i)
	n, err := t.decodeField(decoder{s: t.sess}, i, typ, asArray)
	if err != nil {
		return nil, err
	}
	if err := t.sess.commit(n); err != nil {
		return nil, err
	}
	t.setChild(i, n)
	return n, nil
}

func (t *Table) setChild(i int, n Node) {
	old := t.children[i]
	t.children[i] = n
	t.sess.journal.Record(func() { t.children[i] = old })
}

func (t *Table) dropChild(i int) {
	if c := t.children[i]; c != nil {
		t.sess.release(c)
		t.setChild(i, nil)
	}
}

func (t *Table) fieldInfo(i int, typ fbfmt.TypeCode, asArray bool) FieldInfo {
	info := FieldInfo{Type: typ, IsArray: asArray, Size: t.vt.Fields[i].Size}
	if t.class != nil {
		if m, err := t.class.MemberAt(i); err == nil {
			info.Name = m.Name
		}
	}
	return info
}

// decodeField builds (without committing) the node for field i.
func (t *Table) decodeField(d decoder, i int, typ fbfmt.TypeCode, asArray bool) (Node, error) {
	fo := t.dataOff + t.vt.Fields[i].Offset
	info := t.fieldInfo(i, typ, asArray)
	self := t.self()
	if asArray {
		switch {
		case typ == fbfmt.TypeObject:
			return d.objectArray(self, info, fo, d.class(t.class, i, -1))
		case typ == fbfmt.TypeString:
			return d.stringArray(self, info, fo)
		case typ.IsScalar():
			return d.structArray(self, info, fo, typ)
		}
		return nil, fmt.Errorf("%w: %s[]", ErrUnsupportedType, typ)
	}
	switch {
	case typ == fbfmt.TypeObject:
		return d.object(self, info, fo, d.class(t.class, i, -1))
	case typ == fbfmt.TypeString:
		return d.str(self, info, fo)
	case typ.IsScalar():
		v, err := d.scalar(self, info, fo, typ)
		if err != nil {
			return nil, err
		}
		v.claim(fo, typ.Size(), region.CategoryValue, typ.String())
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
}

// Probe decodes field i as typ without caching, claiming or touching any
// class. It is the read-only path used by inference.
func (t *Table) Probe(i int, typ fbfmt.TypeCode, asArray bool) (Node, error) {
	if err := t.checkIndex(i); err != nil {
		return nil, err
	}
	if !t.vt.HasField(i) {
		return nil, fmt.Errorf("%w: field %d of table at 0x%x", ErrFieldNotPresent, i, t.dataOff)
	}
	if typ == fbfmt.TypeUnion {
		return nil, fmt.Errorf("%w: cannot probe unions", ErrUnsupportedType)
	}
	return t.decodeField(decoder{s: t.sess, probe: true}, i, typ, asArray)
}

// ReadUnion reads the union whose discriminant byte is field typeIndex and
// whose table is field valueIndex. The table gets a class per
// discriminant.
func (t *Table) ReadUnion(typeIndex, valueIndex int) (*Union, error) {
	if err := t.checkIndex(typeIndex); err != nil {
		return nil, err
	}
	if err := t.checkIndex(valueIndex); err != nil {
		return nil, err
	}
	if !t.vt.HasField(valueIndex) {
		u := &Union{}
		u.sess, u.parent, u.absent = t.sess, t.self(), true
		u.info = FieldInfo{Type: fbfmt.TypeUnion}
		return u, nil
	}
	if err := t.attached(); err != nil {
		return nil, err
	}
	var out *Union
	err := t.sess.atomic(func() error {
		u, err := t.materializeUnion(typeIndex, valueIndex)
		if err != nil {
			return err
		}
		out = u
		if err := t.class.SetMemberType(typeIndex, fbfmt.TypeUint8, false); err != nil {
			return err
		}
		if err := t.class.SetDiscriminant(valueIndex, typeIndex); err != nil {
			return err
		}
		return t.class.SetMemberType(valueIndex, fbfmt.TypeUnion, false)
	})
	if err != nil {
		return nil, fmt.Errorf("node: read union %d/%d: %w", typeIndex, valueIndex, err)
	}
	return out, nil
}

func (t *Table) materializeUnion(typeIndex, valueIndex int) (*Union, error) {
	var disc uint8
	if t.vt.HasField(typeIndex) {
		tn, err := t.materialize(typeIndex, fbfmt.TypeUint8, false)
		if err != nil {
			return nil, err
		}
		disc = uint8(tn.(*Scalar).Uint64())
	}
	if c, ok := t.children[valueIndex].(*Union); ok && c.disc == disc && c.typeIndex == typeIndex {
		return c, nil
	}
	t.dropChild(valueIndex)

	d := decoder{s: t.sess}
	fo := t.dataOff + t.vt.Fields[valueIndex].Offset
	info := t.fieldInfo(valueIndex, fbfmt.TypeUnion, false)
	u := &Union{disc: disc, typeIndex: typeIndex}
	u.sess, u.offset, u.parent, u.info = t.sess, fo, t.self(), info
	inner, err := d.object(u, FieldInfo{Name: info.Name, Type: fbfmt.TypeObject, Size: 4}, fo, d.class(t.class, valueIndex, int(disc)))
	if err != nil {
		return nil, err
	}
	u.inner = inner
	if err := t.sess.commit(u); err != nil {
		return nil, err
	}
	t.setChild(valueIndex, u)
	return u, nil
}

// MemberTypeChanged re-decodes this instance's field when its class
// commits a new type. Instances lacking the field are left alone.
func (t *Table) MemberTypeChanged(ch schema.MemberChange) error {
	i := ch.Index
	if i >= t.vt.FieldCount() || !t.vt.HasField(i) {
		return nil
	}
	if ch.New.Type == fbfmt.TypeUnion {
		if u, ok := t.children[i].(*Union); ok && u.typeIndex == ch.New.Discriminant {
			return nil
		}
		if ch.New.Discriminant < 0 || ch.New.Discriminant >= t.vt.FieldCount() {
			return fmt.Errorf("%w: union discriminant %d", ErrIndexOutOfRange, ch.New.Discriminant)
		}
		return t.sess.atomic(func() error {
			_, err := t.materializeUnion(ch.New.Discriminant, i)
			return err
		})
	}
	if matches(t.children[i], ch.New.Type, ch.New.IsArray) {
		return nil
	}
	return t.sess.atomic(func() error {
		if !ch.New.Defined() {
			t.dropChild(i)
			return nil
		}
		_, err := t.materialize(i, ch.New.Type, ch.New.IsArray)
		return err
	})
}

// SetFieldName names member i of the class and the cached child.
func (t *Table) SetFieldName(i int, name string) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	if err := t.attached(); err != nil {
		return err
	}
	return t.sess.atomic(func() error {
		if err := t.class.SetMemberName(i, name); err != nil {
			return err
		}
		if c := t.children[i]; c != nil {
			c.SetName(name)
		}
		return nil
	})
}

// SetTypeName names the shared class.
func (t *Table) SetTypeName(name string) {
	if t.class == nil {
		return
	}
	_ = t.sess.atomic(func() error {
		t.class.SetName(name)
		return nil
	})
}

func (t *Table) TypeName() string {
	if t.class == nil {
		return "Object"
	}
	return t.class.Name()
}

func (t *Table) self() Node { return t.owner }

func (t *Table) absent(i int, typ fbfmt.TypeCode, asArray bool) Node {
	b := base{sess: t.sess, parent: t.self(), absent: true, info: FieldInfo{Type: typ, IsArray: asArray}}
	if t.class != nil {
		if m, err := t.class.MemberAt(i); err == nil {
			b.info.Name = m.Name
		}
	}
	if asArray {
		switch {
		case typ == fbfmt.TypeObject:
			return &ObjectArray{base: b}
		case typ == fbfmt.TypeString:
			return &StringArray{base: b}
		default:
			return &StructArray{base: b, elem: typ}
		}
	}
	switch typ {
	case fbfmt.TypeObject:
		o := &Object{}
		o.base = b
		o.vt = &vtable.VTable{}
		o.owner = o
		return o
	case fbfmt.TypeString:
		return &String{base: b}
	default:
		return &Scalar{base: b, typ: typ}
	}
}
