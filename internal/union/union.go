// Package union groups the entries of an object vector by the discriminant
// byte of a candidate union, so each arm's shape can be analysed on its own.
//
// The candidate layout is the one writers emit for a vector of union
// wrappers: field 0 holds the u8 discriminant, field 1 the arm's table.
package union

import (
	"fmt"
	"sort"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/infer"
	"flatcrawl/internal/node"
)

const (
	typeField  = 0
	valueField = 1
)

// Group is every entry sharing one discriminant.
type Group struct {
	Discriminant uint8 `json:"discriminant" yaml:"discriminant"`
	Indexes      []int `json:"indexes" yaml:"indexes"`
	FieldCounts  []int `json:"field_counts" yaml:"field_counts"`

	tables []*node.Table
}

// SameFieldCount reports whether every arm table in the group has the same
// number of vtable slots.
func (g *Group) SameFieldCount() bool {
	for _, c := range g.FieldCounts {
		if c != g.FieldCounts[0] {
			return false
		}
	}
	return true
}

func (g *Group) MaxFieldCount() int {
	max := 0
	for _, c := range g.FieldCounts {
		if c > max {
			max = c
		}
	}
	return max
}

// Tables returns the arm tables of the group; entries without one are
// skipped.
func (g *Group) Tables() []*node.Table {
	out := make([]*node.Table, 0, len(g.tables))
	for _, t := range g.tables {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Result is the grouping of one object vector.
type Result struct {
	Groups map[uint8]*Group `json:"groups" yaml:"groups"`
}

// Discriminants returns the distinct discriminants in ascending order.
func (r *Result) Discriminants() []uint8 {
	out := make([]uint8, 0, len(r.Groups))
	for d := range r.Groups {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entries returns the entry indexes holding discriminant d.
func (r *Result) Entries(d uint8) []int {
	if g, ok := r.Groups[d]; ok {
		return g.Indexes
	}
	return nil
}

// AnalyzeArm runs field analysis over the arm tables of discriminant d.
func (r *Result) AnalyzeArm(opts fbfmt.Options, d uint8) (*infer.Result, error) {
	g, ok := r.Groups[d]
	if !ok {
		return nil, fmt.Errorf("union: no entries with discriminant %d", d)
	}
	return infer.AnalyzeFields(opts, g.Tables()...)
}

// Analyze groups the entries of arr by discriminant. Nothing is committed:
// fields are probed, not read. An absent discriminant counts as 0 (NONE)
// and an absent arm table has zero fields.
func Analyze(arr *node.ObjectArray) (*Result, error) {
	res := &Result{Groups: make(map[uint8]*Group)}
	for k, e := range arr.Entries() {
		d, err := discriminant(e)
		if err != nil {
			return nil, fmt.Errorf("union: entry %d: %w", k, err)
		}
		var (
			arm    *node.Table
			fields int
		)
		if e.HasField(valueField) {
			n, err := e.Probe(valueField, fbfmt.TypeObject, false)
			if err != nil {
				return nil, fmt.Errorf("union: entry %d: %w", k, err)
			}
			arm = &n.(*node.Object).Table
			fields = arm.FieldCount()
		}

		g, ok := res.Groups[d]
		if !ok {
			g = &Group{Discriminant: d}
			res.Groups[d] = g
		}
		g.Indexes = append(g.Indexes, k)
		g.FieldCounts = append(g.FieldCounts, fields)
		g.tables = append(g.tables, arm)
	}
	return res, nil
}

// Types returns the discriminant byte of every entry of arr.
func Types(arr *node.ObjectArray) ([]uint8, error) {
	out := make([]uint8, arr.Len())
	for k, e := range arr.Entries() {
		d, err := discriminant(e)
		if err != nil {
			return nil, fmt.Errorf("union: entry %d: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}

func discriminant(e *node.Object) (uint8, error) {
	if !e.HasField(typeField) {
		return 0, nil
	}
	n, err := e.Probe(typeField, fbfmt.TypeUint8, false)
	if err != nil {
		return 0, err
	}
	return uint8(n.(*node.Scalar).Uint64()), nil
}
