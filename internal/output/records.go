package output

import (
	"fmt"
	"sort"
	"strings"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/infer"
	"flatcrawl/internal/node"
	"flatcrawl/internal/region"
	"flatcrawl/internal/schema"
	"flatcrawl/internal/union"
)

// NodeRecord describes one navigated node.
type NodeRecord struct {
	Path    string   `json:"path" yaml:"path"`
	Name    string   `json:"name" yaml:"name"`
	Kind    string   `json:"kind" yaml:"kind"`
	Type    string   `json:"type" yaml:"type"`
	Offset  int      `json:"offset" yaml:"offset"`
	Absent  bool     `json:"absent,omitempty" yaml:"absent,omitempty"`
	Value   any      `json:"value,omitempty" yaml:"value,omitempty"`
	Summary []string `json:"summary" yaml:"summary"`
}

// NewNodeRecord captures n. Scalars and strings carry their value; arrays
// of values carry every element.
func NewNodeRecord(n node.Node) NodeRecord {
	r := NodeRecord{
		Path:    node.Path(n),
		Name:    n.Name(),
		Kind:    n.Kind().String(),
		Type:    n.TypeName(),
		Offset:  n.Offset(),
		Absent:  n.Absent(),
		Summary: node.Summary(n),
	}
	switch n := n.(type) {
	case *node.Scalar:
		r.Value = n.Value()
	case *node.String:
		r.Value = n.Value()
	case *node.StringArray:
		r.Value = n.Values()
	case *node.StructArray:
		vals := make([]any, n.Len())
		for i := range vals {
			e, _ := n.Entry(i)
			vals[i] = e.Value()
		}
		r.Value = vals
	}
	return r
}

func (r NodeRecord) Text() string {
	return strings.Join(r.Summary, "\n")
}

// ClassRecord describes one schema class.
type ClassRecord struct {
	ID          int             `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Path        string          `json:"path" yaml:"path"`
	Arm         int             `json:"arm" yaml:"arm"`
	DataLength  int             `json:"data_length" yaml:"data_length"`
	VTables     int             `json:"vtables" yaml:"vtables"`
	Instances   int             `json:"instances" yaml:"instances"`
	Fingerprint string          `json:"fingerprint" yaml:"fingerprint"`
	Members     []schema.Member `json:"members" yaml:"members"`
}

// Schema is every class of a registry plus the session diagnostics.
type Schema struct {
	Classes []ClassRecord `json:"classes" yaml:"classes"`
	Diags   []fbfmt.Diag  `json:"diags,omitempty" yaml:"diags,omitempty"`
}

// NewSchema captures reg in creation order.
func NewSchema(reg *schema.Registry) Schema {
	var s Schema
	for _, c := range reg.Classes() {
		s.Classes = append(s.Classes, ClassRecord{
			ID:          c.ID,
			Name:        c.Name(),
			Path:        c.Path(),
			Arm:         c.Arm,
			DataLength:  c.DataLength(),
			VTables:     c.VTableCount(),
			Instances:   len(c.Observers()),
			Fingerprint: fmt.Sprintf("%016x", c.Fingerprint()),
			Members:     c.Members(),
		})
	}
	s.Diags = reg.Diags().Items()
	return s
}

func (s Schema) Text() string {
	var b strings.Builder
	for _, c := range s.Classes {
		fmt.Fprintf(&b, "%s (%s) data=%d vtables=%d instances=%d %s\n",
			c.Name, c.Path, c.DataLength, c.VTables, c.Instances, c.Fingerprint)
		for i, m := range c.Members {
			size := fmt.Sprint(m.Size)
			if !m.SizeCertain {
				size += "?"
			}
			fmt.Fprintf(&b, "\t[%d] %s @%d size %s\n", i, m, m.Offset, size)
		}
	}
	for _, d := range s.Diags {
		fmt.Fprintf(&b, "%s\n", d)
	}
	return b.String()
}

// Regions is a full-buffer region report.
type Regions struct {
	Length   int            `json:"length" yaml:"length"`
	Ranges   []region.Range `json:"ranges" yaml:"ranges"`
	Coverage map[string]int `json:"coverage" yaml:"coverage"`
}

// NewRegions captures report for a buffer of bufLen bytes.
func NewRegions(bufLen int, report []region.Range) Regions {
	r := Regions{Length: bufLen, Ranges: report, Coverage: make(map[string]int)}
	for c, n := range region.Coverage(report) {
		r.Coverage[c.String()] = n
	}
	return r
}

func (r Regions) Text() string {
	var b strings.Builder
	for _, x := range r.Ranges {
		fmt.Fprintf(&b, "%s\n", x)
	}
	cats := make([]string, 0, len(r.Coverage))
	for c := range r.Coverage {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		n := r.Coverage[c]
		pct := 0.0
		if r.Length > 0 {
			pct = float64(n) / float64(r.Length) * 100
		}
		fmt.Fprintf(&b, "%-10s %6d bytes %5.1f%%\n", c, n, pct)
	}
	return b.String()
}

// FieldRecord is the inference result for one field index.
type FieldRecord struct {
	Index     int      `json:"index" yaml:"index"`
	Min       int      `json:"min" yaml:"min"`
	Max       int      `json:"max" yaml:"max"`
	Uncertain bool     `json:"uncertain" yaml:"uncertain"`
	Single    []string `json:"single,omitempty" yaml:"single,omitempty"`
	Array     []string `json:"array,omitempty" yaml:"array,omitempty"`
	Summary   string   `json:"summary" yaml:"summary"`
}

// Analysis is a field inference result.
type Analysis struct {
	Tables      int           `json:"tables" yaml:"tables"`
	Recognized  bool          `json:"recognized" yaml:"recognized"`
	Fingerprint string        `json:"fingerprint" yaml:"fingerprint"`
	Fields      []FieldRecord `json:"fields" yaml:"fields"`
	Diags       []fbfmt.Diag  `json:"diags,omitempty" yaml:"diags,omitempty"`
}

// NewAnalysis captures res, computed over the given number of tables.
func NewAnalysis(tables int, res *infer.Result) Analysis {
	a := Analysis{
		Tables:      tables,
		Recognized:  res.Recognized(),
		Fingerprint: fmt.Sprintf("%016x", res.Fingerprint()),
		Diags:       res.Diags,
	}
	for _, i := range res.Indexes() {
		f := res.Fields[i]
		a.Fields = append(a.Fields, FieldRecord{
			Index:     i,
			Min:       f.Size.Min,
			Max:       f.Size.Max,
			Uncertain: f.Size.Uncertain,
			Single:    typeNames(f.Type.SingleTypes(), false),
			Array:     typeNames(f.Type.ArrayTypes(), true),
			Summary:   f.Summary(),
		})
	}
	return a
}

func typeNames(types []fbfmt.TypeCode, array bool) []string {
	var out []string
	for _, t := range types {
		out = append(out, fbfmt.FormatType(t, array))
	}
	return out
}

func (a Analysis) Text() string {
	var b strings.Builder
	for _, f := range a.Fields {
		fmt.Fprintf(&b, "[%d] %s\n", f.Index, f.Summary)
	}
	for _, d := range a.Diags {
		fmt.Fprintf(&b, "%s\n", d)
	}
	return b.String()
}

// GroupRecord is one union discriminant group.
type GroupRecord struct {
	Discriminant   uint8 `json:"discriminant" yaml:"discriminant"`
	Indexes        []int `json:"indexes" yaml:"indexes"`
	FieldCounts    []int `json:"field_counts" yaml:"field_counts"`
	SameFieldCount bool  `json:"same_field_count" yaml:"same_field_count"`
	MaxFieldCount  int   `json:"max_field_count" yaml:"max_field_count"`
}

// Unions is a union grouping in ascending discriminant order.
type Unions struct {
	Groups []GroupRecord `json:"groups" yaml:"groups"`
}

// NewUnions captures res.
func NewUnions(res *union.Result) Unions {
	var u Unions
	for _, d := range res.Discriminants() {
		g := res.Groups[d]
		u.Groups = append(u.Groups, GroupRecord{
			Discriminant:   d,
			Indexes:        g.Indexes,
			FieldCounts:    g.FieldCounts,
			SameFieldCount: g.SameFieldCount(),
			MaxFieldCount:  g.MaxFieldCount(),
		})
	}
	return u
}

func (u Unions) Text() string {
	var b strings.Builder
	for _, g := range u.Groups {
		same := "mixed"
		if g.SameFieldCount {
			same = "same"
		}
		fmt.Fprintf(&b, "type %d: %d entries %v, max %d fields (%s)\n",
			g.Discriminant, len(g.Indexes), g.Indexes, g.MaxFieldCount, same)
	}
	return b.String()
}
