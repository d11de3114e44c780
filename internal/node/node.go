// Package node is the lazy, schema-less view of a FlatBuffers buffer.
//
// Nodes are materialized only when a field is explicitly read. Every
// committed read claims the bytes it interprets in the session's region
// tracker and folds the table's vtable into its shared class; a read that
// fails partway leaves the session exactly as it was.
package node

import (
	"errors"
	"fmt"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/region"
)

var (
	ErrIndexOutOfRange  = errors.New("node: index out of range")
	ErrFieldNotPresent  = errors.New("node: field not present")
	ErrUnsupportedType  = errors.New("node: unsupported type")
	ErrImplausibleValue = errors.New("node: implausible value")
	ErrDetached         = errors.New("node: table has no class")
)

// Kind is the closed set of node variants.
type Kind int

const (
	KindRoot Kind = iota
	KindObject
	KindObjectArray
	KindStringArray
	KindStructArray
	KindScalar
	KindString
	KindUnion
)

var kindNames = [...]string{
	KindRoot:        "root",
	KindObject:      "object",
	KindObjectArray: "object[]",
	KindStringArray: "string[]",
	KindStructArray: "struct[]",
	KindScalar:      "scalar",
	KindString:      "string",
	KindUnion:       "union",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FieldInfo describes how a node was read from its parent.
type FieldInfo struct {
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type    fbfmt.TypeCode `json:"type" yaml:"type"`
	Size    int            `json:"size" yaml:"size"`
	IsArray bool           `json:"is_array,omitempty" yaml:"is_array,omitempty"`
}

// Node is implemented only by the types of this package: *Root, *Object,
// *ObjectArray, *StringArray, *StructArray, *Scalar, *String and *Union.
type Node interface {
	Kind() Kind
	// Offset is where the node's bytes start in its parent: the value for
	// scalars, the relative pointer slot for referenced data, 0 for the root.
	Offset() int
	Parent() Node
	Info() FieldInfo
	Name() string
	SetName(string)
	TypeName() string
	// Absent reports a typed default standing in for a field missing from
	// the vtable. Absent nodes own no bytes.
	Absent() bool
	GetChildIndex(Node) int

	core() *base
}

type base struct {
	sess   *Session
	offset int
	parent Node
	info   FieldInfo
	absent bool
	claims []region.Range
}

func (b *base) core() *base       { return b }
func (b *base) Offset() int       { return b.offset }
func (b *base) Parent() Node      { return b.parent }
func (b *base) Info() FieldInfo   { return b.info }
func (b *base) Absent() bool      { return b.absent }
func (b *base) SetName(n string)  { b.info.Name = n }
func (b *base) Session() *Session { return b.sess }

// Claims returns the ranges this node itself owns (children excluded).
func (b *base) Claims() []region.Range {
	out := make([]region.Range, len(b.claims))
	copy(out, b.claims)
	return out
}

func (b *base) nameOr(def string) string {
	if b.info.Name != "" {
		return b.info.Name
	}
	return def
}

func (b *base) claim(off, n int, c region.Category, desc string) {
	b.claims = append(b.claims, region.Range{Offset: off, Length: n, Category: c, Description: desc})
}

func (b *base) claimSub(off, n int, c region.Category, desc string) {
	b.claims = append(b.claims, region.Range{Offset: off, Length: n, Category: c, Description: desc, Sub: true})
}

// matches reports whether n was decoded as (t, asArray).
func matches(n Node, t fbfmt.TypeCode, asArray bool) bool {
	if n == nil {
		return false
	}
	info := n.Info()
	return info.Type == t && info.IsArray == asArray
}

// Path renders the navigation path from the root to n, e.g. "2/0/1".
func Path(n Node) string {
	if n == nil || n.Parent() == nil {
		return ""
	}
	idx := n.Parent().GetChildIndex(n)
	parent := Path(n.Parent())
	if parent == "" {
		return fmt.Sprint(idx)
	}
	return fmt.Sprintf("%s/%d", parent, idx)
}
