// Package render produces Graphviz DOT output for inferred schemas.
package render

import (
	"fmt"
	"strings"

	"flatcrawl/internal/schema"
)

const maxNameLen = 40

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;")

// dotEscape escapes s for a DOT HTML label.
func dotEscape(s string) string { return htmlEscaper.Replace(s) }

// dotID turns a class path into a node identifier. Anything outside
// [A-Za-z0-9_] becomes _xxxx (hex code point), so distinct paths never
// collide.
func dotID(path string) string {
	var b strings.Builder
	b.WriteString("n_")
	for _, c := range path {
		switch {
		case c == '_', c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			b.WriteRune(c)
		default:
			fmt.Fprintf(&b, "_%04x", c)
		}
	}
	return b.String()
}

// clip shortens names longer than maxNameLen, marking the cut with "...".
func clip(s string) string {
	if len(s) <= maxNameLen {
		return s
	}
	return s[:maxNameLen-3] + "..."
}

// SchemaDOT renders every class of reg as a table of its members, with an
// edge from each parent member to the class it leads to. Uncertain sizes
// and members never read are drawn in the theme's accent colors.
func SchemaDOT(reg *schema.Registry, title string, t Theme) string {
	var b strings.Builder
	b.WriteString("digraph schema {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.8;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=plaintext, fontname=\"Courier,monospace\", fontsize=9, fontcolor=%q];\n", t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeObject)
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	classes := reg.Classes()
	for _, c := range classes {
		writeClass(&b, c, t)
	}
	b.WriteByte('\n')

	for _, c := range classes {
		if c.Parent == nil {
			continue
		}
		from := fmt.Sprintf("%s:m%d", dotID(c.Parent.Path()), c.Member)
		to := dotID(c.Path())
		color := t.EdgeObject
		var label string
		if m, err := c.Parent.MemberAt(c.Member); err == nil && m.IsArray {
			color = t.EdgeArray
		}
		if c.Arm >= 0 {
			color = t.EdgeUnion
			label = fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%d</font>>", t.EdgeUnion, c.Arm)
		}
		fmt.Fprintf(&b, "  %s -> %s [color=%q%s];\n", from, to, color, label)
	}

	b.WriteString("}\n")
	return b.String()
}

func writeClass(b *strings.Builder, c *schema.Class, t Theme) {
	header := t.NodeFill
	if c.Parent == nil {
		header = t.RootFill
	}
	fmt.Fprintf(b, "  %s [label=<<table border=\"1\" cellborder=\"0\" cellspacing=\"0\" color=%q bgcolor=%q>\n",
		dotID(c.Path()), t.NodeBorder, t.NodeFill)
	fmt.Fprintf(b, "    <tr><td bgcolor=%q colspan=\"3\"><b>%s</b> <font point-size=\"7\">%s, %d vtables</font></td></tr>\n",
		header, dotEscape(clip(c.Name())), dotEscape(c.Path()), c.VTableCount())

	for i, m := range c.Members() {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("field%d", i)
		}
		typ := dotEscape(m.TypeName())
		if !m.Defined() {
			typ = fmt.Sprintf("<font color=%q>%s</font>", t.Undefined, typ)
		}
		size := fmt.Sprint(m.Size)
		if !m.SizeCertain {
			size = fmt.Sprintf("<font color=%q>%d?</font>", t.Uncertain, m.Size)
		}
		fmt.Fprintf(b, "    <tr><td port=\"m%d\" align=\"left\">[%d] %s</td><td align=\"left\">%s</td><td align=\"right\">%s</td></tr>\n",
			i, i, dotEscape(clip(name)), typ, size)
	}
	b.WriteString("  </table>>];\n")
}
