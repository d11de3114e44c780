// Package schema aggregates the shapes of sibling FlatBuffers tables into
// shared classes and propagates committed member types to every live
// instance of a class.
package schema

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/vtable"
)

var (
	ErrInconsistentShape = errors.New("schema: inconsistent shape")
	ErrMemberIndex       = errors.New("schema: member index out of range")
)

// NoDiscriminant marks a member that is not the value half of a union.
const NoDiscriminant = -1

// Member describes one field slot of a class.
type Member struct {
	Name         string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type         fbfmt.TypeCode `json:"type" yaml:"type"`
	IsArray      bool           `json:"is_array,omitempty" yaml:"is_array,omitempty"`
	Offset       int            `json:"offset" yaml:"offset"`
	Size         int            `json:"size" yaml:"size"`
	SizeCertain  bool           `json:"size_certain,omitempty" yaml:"size_certain,omitempty"`
	Discriminant int            `json:"discriminant" yaml:"discriminant"`
}

// Defined reports whether a type has been committed for the member.
func (m Member) Defined() bool { return m.Type != fbfmt.TypeNone }

func (m Member) TypeName() string {
	if !m.Defined() {
		return "???"
	}
	return fbfmt.FormatType(m.Type, m.IsArray)
}

func (m Member) String() string {
	name := m.Name
	if name == "" {
		name = "???"
	}
	return fmt.Sprintf("%s { Type: %s, Size: %d, Offset: %d }", name, m.TypeName(), m.Size, m.Offset)
}

// MemberChange is delivered to observers when a member's committed type
// changes.
type MemberChange struct {
	Class *Class
	Index int
	Old   Member
	New   Member
}

// Observer is a live table instance of a class.
type Observer interface {
	Offset() int
	MemberTypeChanged(MemberChange) error
}

// Token identifies a subscription.
type Token int

// Class is the shared descriptor of every table reached through the same
// structural position. The member list only grows; sizes only narrow.
type Class struct {
	ID     int
	Parent *Class
	Member int // index in Parent; -1 for the root
	Arm    int // union discriminant; -1 outside unions

	reg        *Registry
	name       string
	members    []Member
	dataLength int
	vtables    map[int]struct{}
	observers  []Observer
}

// Name returns the assigned type name or a generated one.
func (c *Class) Name() string {
	if c.name != "" {
		return c.name
	}
	if c.Parent == nil {
		return "Root"
	}
	return fmt.Sprintf("Class%d", c.ID)
}

// Path names the structural position, e.g. "root/2/0#3".
func (c *Class) Path() string {
	if c.Parent == nil {
		return "root"
	}
	p := fmt.Sprintf("%s/%d", c.Parent.Path(), c.Member)
	if c.Arm >= 0 {
		p += fmt.Sprintf("#%d", c.Arm)
	}
	return p
}

// SetName assigns the class type name.
func (c *Class) SetName(name string) {
	_ = c.reg.journal.Do(func() error {
		old := c.name
		c.name = name
		c.reg.journal.Record(func() { c.name = old })
		return nil
	})
}

// Members returns a copy of the member list.
func (c *Class) Members() []Member {
	out := make([]Member, len(c.members))
	copy(out, c.members)
	return out
}

// MemberCount returns the number of known members.
func (c *Class) MemberCount() int { return len(c.members) }

// MemberAt returns member i.
func (c *Class) MemberAt(i int) (Member, error) {
	if i < 0 || i >= len(c.members) {
		return Member{}, fmt.Errorf("%w: %d (class %s has %d)", ErrMemberIndex, i, c.Name(), len(c.members))
	}
	return c.members[i], nil
}

// DataLength returns the largest data table length seen.
func (c *Class) DataLength() int { return c.dataLength }

// VTableCount returns the number of distinct vtables associated.
func (c *Class) VTableCount() int { return len(c.vtables) }

func (c *Class) setMember(i int, m Member) {
	old := c.members[i]
	c.members[i] = m
	c.reg.journal.Record(func() { c.members[i] = old })
}

// SetMemberName names member i.
func (c *Class) SetMemberName(i int, name string) error {
	m, err := c.MemberAt(i)
	if err != nil {
		return err
	}
	m.Name = name
	return c.reg.journal.Do(func() error {
		c.setMember(i, m)
		return nil
	})
}

// SetDiscriminant records that member i is the value of a union whose type
// byte lives in member typeIndex.
func (c *Class) SetDiscriminant(i, typeIndex int) error {
	m, err := c.MemberAt(i)
	if err != nil {
		return err
	}
	if _, err := c.MemberAt(typeIndex); err != nil {
		return err
	}
	if m.Discriminant == typeIndex {
		return nil
	}
	m.Discriminant = typeIndex
	return c.reg.journal.Do(func() error {
		c.setMember(i, m)
		return nil
	})
}

// SetMemberType commits a type for member i and notifies every observer.
// In strict mode the first observer failure undoes the whole change; in
// best-effort mode failing observers are reported as diagnostics.
func (c *Class) SetMemberType(i int, t fbfmt.TypeCode, asArray bool) error {
	old, err := c.MemberAt(i)
	if err != nil {
		return err
	}
	if old.Type == t && old.IsArray == asArray {
		return nil
	}
	m := old
	m.Type, m.IsArray = t, asArray
	return c.reg.journal.Do(func() error {
		c.setMember(i, m)
		return c.notify(MemberChange{Class: c, Index: i, Old: old, New: m})
	})
}

func (c *Class) notify(ch MemberChange) error {
	log := c.reg.log.WithField("class", c.Path())
	for k := 0; k < len(c.observers); k++ {
		o := c.observers[k]
		if o == nil {
			continue
		}
		if err := o.MemberTypeChanged(ch); err != nil {
			if c.reg.opts.Mode == fbfmt.ModeStrict {
				return fmt.Errorf("schema: propagate %s member %d to 0x%x: %w", c.Path(), ch.Index, o.Offset(), err)
			}
			log.WithError(err).Warnf("skipping instance at 0x%x", o.Offset())
			c.reg.addDiag(o.Offset(), fbfmt.DiagPropagation,
				"%s member %d as %s: %v", c.Path(), ch.Index, ch.New.TypeName(), err)
		}
	}
	log.Debugf("member %d %s -> %s", ch.Index, ch.Old.TypeName(), ch.New.TypeName())
	return nil
}

// Subscribe registers a live instance.
func (c *Class) Subscribe(o Observer) Token {
	c.observers = append(c.observers, o)
	tok := Token(len(c.observers) - 1)
	_ = c.reg.journal.Do(func() error {
		c.reg.journal.Record(func() { c.observers[tok] = nil })
		return nil
	})
	return tok
}

// Unsubscribe removes the instance registered under tok.
func (c *Class) Unsubscribe(tok Token) {
	i := int(tok)
	if i < 0 || i >= len(c.observers) || c.observers[i] == nil {
		return
	}
	old := c.observers[i]
	c.observers[i] = nil
	_ = c.reg.journal.Do(func() error {
		c.reg.journal.Record(func() { c.observers[i] = old })
		return nil
	})
}

// Observers returns the live instances.
func (c *Class) Observers() []Observer {
	var out []Observer
	for _, o := range c.observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type inconsistency struct {
	index    int
	have     int
	observed int
}

// AssociateVTable folds a newly seen vtable into the class. The member list
// grows to the vtable's field count and unknown offsets are back-filled.
// Sizes are reconciled in both directions: a smaller size narrows the class
// and a larger one narrows the vtable's derived size instead. Contradicting
// a certain size is an inconsistency, handled per the registry policy.
func (c *Class) AssociateVTable(vt *vtable.VTable) error {
	if _, ok := c.vtables[vt.Location]; ok {
		return nil
	}
	return c.reg.journal.Do(func() error { return c.associate(vt) })
}

func (c *Class) associate(vt *vtable.VTable) error {

	members := c.Members()
	for i := len(members); i < vt.FieldCount(); i++ {
		f := vt.Fields[i]
		members = append(members, Member{Offset: f.Offset, Discriminant: NoDiscriminant})
	}
	for i, f := range vt.Fields {
		if members[i].Offset == 0 {
			members[i].Offset = f.Offset
		}
	}

	var bad []inconsistency
	type narrowing struct{ index, size int }
	var narrow []narrowing
	for _, b := range vt.Bounds() {
		f := vt.Fields[b.Index]
		m := &members[b.Index]
		switch {
		case m.Size == 0:
			m.Size, m.SizeCertain = f.Size, b.Certain
		case f.Size < m.Size:
			if m.SizeCertain {
				bad = append(bad, inconsistency{b.Index, m.Size, f.Size})
			}
			m.Size = f.Size
			m.SizeCertain = m.SizeCertain || b.Certain
		case f.Size > m.Size:
			if b.Certain {
				bad = append(bad, inconsistency{b.Index, m.Size, f.Size})
			}
			narrow = append(narrow, narrowing{b.Index, m.Size})
		default:
			m.SizeCertain = m.SizeCertain || b.Certain
		}
	}

	if len(bad) > 0 && c.reg.opts.Inconsistency == fbfmt.InconsistencyError {
		x := bad[0]
		return fmt.Errorf("%w: %s member %d size %d, vtable 0x%x implies %d",
			ErrInconsistentShape, c.Path(), x.index, x.have, vt.Location, x.observed)
	}

	j := c.reg.journal
	oldMembers, oldLen := c.members, c.dataLength
	c.members = members
	if vt.DataLength > c.dataLength {
		c.dataLength = vt.DataLength
	}
	c.vtables[vt.Location] = struct{}{}
	j.Record(func() {
		c.members, c.dataLength = oldMembers, oldLen
		delete(c.vtables, vt.Location)
	})

	for _, n := range narrow {
		old := vt.Fields[n.index].Size
		if vt.Narrow(n.index, n.size) {
			j.Record(func() { vt.Fields[n.index].Size = old })
		}
	}
	for _, x := range bad {
		c.reg.log.WithField("class", c.Path()).Warnf("member %d: certain size %d contradicted by %d (vtable 0x%x)",
			x.index, x.have, x.observed, vt.Location)
		c.reg.addDiag(vt.Location, fbfmt.DiagInconsistentSize,
			"%s member %d: certain size %d contradicted by %d", c.Path(), x.index, x.have, x.observed)
	}
	return nil
}

// Fingerprint hashes the member layout (types, offsets, sizes). Two
// classes with the same fingerprint have identical committed shapes.
func (c *Class) Fingerprint() uint64 {
	buf := make([]byte, 0, 16*len(c.members))
	for i, m := range c.members {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i))
		buf = append(buf, byte(m.Type))
		if m.IsArray {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Offset))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Size))
	}
	return xxh3.Hash(buf)
}

func (c *Class) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s) {", c.Name(), c.Path())
	for i, m := range c.members {
		fmt.Fprintf(&sb, "\n  %02d: %s", i, m)
	}
	sb.WriteString("\n}")
	return sb.String()
}
