package infer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/node"
)

// probe widths, narrowest first. Signedness cannot be told apart from the
// bytes, so one unsigned and one float type stand in per width.
var structs = []fbfmt.TypeCode{
	fbfmt.TypeUint8,
	fbfmt.TypeUint16,
	fbfmt.TypeUint32,
	fbfmt.TypeFloat32,
	fbfmt.TypeUint64,
	fbfmt.TypeFloat64,
}

// TypeCandidates holds the type codes a field may still be, as bit sets
// over fbfmt.TypeCode.Bit. Bits are seeded by the first present instance
// and only ever cleared afterwards.
type TypeCandidates struct {
	Single       uint32 `json:"single" yaml:"single"`
	Array        uint32 `json:"array" yaml:"array"`
	Observations int    `json:"observations" yaml:"observations"`

	guess FieldType
}

func (c *TypeCandidates) Recognized() bool { return c.Single != 0 || c.Array != 0 }

func (c *TypeCandidates) IsPotentialObject() bool {
	return c.Single&fbfmt.TypeObject.Bit() != 0
}

func (c *TypeCandidates) IsPotentialObjectArray() bool {
	return c.Array&fbfmt.TypeObject.Bit() != 0
}

// SingleTypes lists the surviving single-value candidates in display order.
func (c *TypeCandidates) SingleTypes() []fbfmt.TypeCode {
	order := append(append([]fbfmt.TypeCode{}, structs...), fbfmt.TypeBool, fbfmt.TypeObject, fbfmt.TypeString)
	return setBits(c.Single, order)
}

// ArrayTypes lists the surviving array element candidates in display order.
func (c *TypeCandidates) ArrayTypes() []fbfmt.TypeCode {
	order := append(append([]fbfmt.TypeCode{}, structs...), fbfmt.TypeObject, fbfmt.TypeString)
	return setBits(c.Array, order)
}

func setBits(mask uint32, order []fbfmt.TypeCode) []fbfmt.TypeCode {
	var out []fbfmt.TypeCode
	for _, t := range order {
		if mask&t.Bit() != 0 {
			out = append(out, t)
		}
	}
	return out
}

// observe interprets field i of t and updates the candidate bits.
func (c *TypeCandidates) observe(t *node.Table, i int, sizes *SizeRange) {
	c.Observations++
	if c.Observations == 1 {
		c.seed(t, i, sizes)
		return
	}
	c.Single = c.filter(c.Single, func(typ fbfmt.TypeCode) bool { return trySingle(t, i, typ) })
	c.Array = c.filter(c.Array, func(typ fbfmt.TypeCode) bool { return tryArray(t, i, typ) })
}

func (c *TypeCandidates) filter(mask uint32, try func(fbfmt.TypeCode) bool) uint32 {
	for typ := fbfmt.TypeBool; typ <= fbfmt.TypeObject; typ++ {
		if mask&typ.Bit() != 0 && !try(typ) {
			mask &^= typ.Bit()
		}
	}
	return mask
}

func (c *TypeCandidates) seed(t *node.Table, i int, sizes *SizeRange) {
	if c.guess&StructSingle != 0 {
		for _, typ := range structs {
			if sizes.Plausible(typ.Size()) && trySingle(t, i, typ) {
				c.Single |= typ.Bit()
			}
		}
		if sizes.Plausible(1) && trySingle(t, i, fbfmt.TypeBool) {
			c.Single |= fbfmt.TypeBool.Bit()
		}
	}

	// Everything below is reached through a 4-byte offset.
	if !sizes.Plausible(4) {
		return
	}
	if c.guess&StructArray != 0 {
		for _, typ := range structs {
			if tryArray(t, i, typ) {
				c.Array |= typ.Bit()
			}
		}
	}
	if c.guess&Object != 0 {
		for _, typ := range []fbfmt.TypeCode{fbfmt.TypeObject, fbfmt.TypeString} {
			if trySingle(t, i, typ) {
				c.Single |= typ.Bit()
			}
		}
	}
	if c.guess&ObjectArray != 0 {
		for _, typ := range []fbfmt.TypeCode{fbfmt.TypeObject, fbfmt.TypeString} {
			if tryArray(t, i, typ) {
				c.Array |= typ.Bit()
			}
		}
	}
}

// trySingle reports whether field i of t decodes as a plausible typ.
func trySingle(t *node.Table, i int, typ fbfmt.TypeCode) bool {
	if typ == fbfmt.TypeObject || typ == fbfmt.TypeString {
		ref, err := t.GetReferenceOffset(i)
		if err != nil || ref < 0 || ref > t.Session().Buffer().Len()-4 {
			return false
		}
	}
	if typ == fbfmt.TypeBool {
		n, err := t.Probe(i, fbfmt.TypeUint8, false)
		if err != nil {
			return false
		}
		v := n.(*node.Scalar).Uint64()
		return v == 0 || v == 1
	}
	n, err := t.Probe(i, typ, false)
	if err != nil {
		return false
	}
	if s, ok := n.(*node.String); ok {
		return Readable(s.Value())
	}
	return true
}

// tryArray reports whether field i of t decodes as a plausible vector of
// typ.
func tryArray(t *node.Table, i int, typ fbfmt.TypeCode) bool {
	n, err := t.Probe(i, typ, true)
	if err != nil {
		return false
	}
	if a, ok := n.(*node.StringArray); ok {
		for _, v := range a.Values() {
			if !Readable(v) {
				return false
			}
		}
	}
	return true
}

// Readable reports whether s is valid UTF-8 free of control characters
// other than common whitespace.
func Readable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// Summary lists the surviving candidates, e.g.
// "Possible Types: u8; u32; string;    Possible ArrayTypes: u8[];".
func (c *TypeCandidates) Summary() string {
	return c.summary(func(typ fbfmt.TypeCode, array bool) string {
		return fbfmt.FormatType(typ, array)
	})
}

// SummaryFor is Summary with every candidate rendered as its decoded value
// from field i of t.
func (c *TypeCandidates) SummaryFor(t *node.Table, i int) string {
	return c.summary(func(typ fbfmt.TypeCode, array bool) string {
		return DisplayValue(t, i, typ, array)
	})
}

func (c *TypeCandidates) summary(show func(fbfmt.TypeCode, bool) string) string {
	if !c.Recognized() {
		return "Unrecognized"
	}
	var sb strings.Builder
	if c.Single != 0 {
		sb.WriteString("Possible Types: ")
		for _, typ := range c.SingleTypes() {
			if s := show(typ, false); s != "" {
				sb.WriteString(s + "; ")
			}
		}
	}
	if c.Array != 0 {
		if c.Single != 0 {
			sb.WriteString("    ")
		}
		sb.WriteString("Possible ArrayTypes: ")
		for _, typ := range c.ArrayTypes() {
			if s := show(typ, true); s != "" {
				sb.WriteString(s + "; ")
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// DisplayValue renders field i of t decoded as typ, or "" when it no
// longer decodes.
func DisplayValue(t *node.Table, i int, typ fbfmt.TypeCode, array bool) string {
	name := fbfmt.FormatType(typ, array)
	if !t.HasField(i) {
		if array {
			return name + " (null)"
		}
		return name + " (default)"
	}
	n, err := t.Probe(i, typ, array)
	if err != nil {
		return ""
	}
	switch n := n.(type) {
	case *node.Scalar:
		if typ == fbfmt.TypeBool {
			return fmt.Sprintf("bool %v", n.Uint64() != 0)
		}
		return fmt.Sprintf("%s %s", typ, n)
	case *node.String:
		return fmt.Sprintf("string %q", n.Value())
	case *node.Object:
		return fmt.Sprintf("object{%d}", n.FieldCount())
	case *node.ObjectArray:
		return fmt.Sprintf("object[%d]", n.Len())
	case *node.StringArray:
		return fmt.Sprintf("string[%d]", n.Len())
	case *node.StructArray:
		return fmt.Sprintf("%s[%d]", typ, n.Len())
	}
	return name
}
