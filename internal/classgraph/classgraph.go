// Package classgraph maps the schema registry onto lattice graphs.
package classgraph

import (
	"fmt"
	"sort"

	"github.com/zboralski/lattice"

	"flatcrawl/internal/schema"
)

// NodeName is the unique graph label of c, e.g. "Item@root/0".
func NodeName(c *schema.Class) string {
	return c.Name() + "@" + c.Path()
}

// BuildClassGraph constructs a lattice.Graph from the registry.
// Each class becomes a node. Each class reached through a member of
// another class becomes an edge from the parent.
func BuildClassGraph(reg *schema.Registry) *lattice.Graph {
	g := &lattice.Graph{}
	for _, c := range reg.Classes() {
		g.Nodes = append(g.Nodes, NodeName(c))
		if c.Parent == nil {
			continue
		}
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: NodeName(c.Parent),
			Callee: NodeName(c),
		})
	}
	g.Dedup()
	return g
}

// BuildLayout constructs a lattice.CFGGraph where each class is one
// function and each present member one block, chained in offset order.
// Block Start/End are the member's byte range in the data table; the
// member itself is the block's single call site. Classes without present
// members are skipped.
func BuildLayout(reg *schema.Registry) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, c := range reg.Classes() {
		if f := classLayout(c); len(f.Blocks) > 0 {
			cg.Funcs = append(cg.Funcs, f)
		}
	}
	return cg
}

func classLayout(c *schema.Class) *lattice.FuncCFG {
	type slot struct {
		index int
		m     schema.Member
	}
	var slots []slot
	for i, m := range c.Members() {
		if m.Offset > 0 {
			slots = append(slots, slot{i, m})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].m.Offset < slots[j].m.Offset })

	f := &lattice.FuncCFG{Name: NodeName(c)}
	for k, s := range slots {
		b := &lattice.BasicBlock{
			ID:    k,
			Start: s.m.Offset,
			End:   s.m.Offset + s.m.Size,
			Term:  k == len(slots)-1,
			Calls: []lattice.CallSite{{
				Offset: s.index,
				Callee: memberLabel(s.index, s.m),
			}},
		}
		if !b.Term {
			b.Succs = append(b.Succs, lattice.Successor{BlockID: k + 1})
		}
		f.Blocks = append(f.Blocks, b)
	}
	return f
}

func memberLabel(i int, m schema.Member) string {
	size := fmt.Sprintf("%d", m.Size)
	if !m.SizeCertain {
		size += "?"
	}
	name := m.Name
	if name == "" {
		name = fmt.Sprintf("field%d", i)
	}
	return fmt.Sprintf("[%d] %s: %s (%s)", i, name, m.TypeName(), size)
}
