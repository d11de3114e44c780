package node

import "fmt"

// Summary describes n in a few human-readable lines.
func Summary(n Node) []string {
	out := []string{fmt.Sprintf("%s @ 0x%X", n.Name(), n.Offset())}
	if n.Absent() {
		return append(out, fmt.Sprintf("Absent %s (default value)", n.Info().Type))
	}
	switch n := n.(type) {
	case *Root:
		magic := n.Magic()
		if magic == "" {
			magic = "NO MAGIC"
		}
		out = append(out,
			fmt.Sprintf("Magic: %s", magic),
			fmt.Sprintf("DataTable Offset: 0x%X", n.DataTableOffset()),
			n.VTable().String(),
			"Field Order:"+n.VTable().FieldOrder(n.DataTableOffset()))
	case *Object:
		out = append(out,
			fmt.Sprintf("Type: %s", n.TypeName()),
			fmt.Sprintf("DataTable Offset: 0x%X", n.DataTableOffset()),
			n.VTable().String(),
			"Field Order:"+n.VTable().FieldOrder(n.DataTableOffset()))
	case *ObjectArray:
		out = append(out, arraySummary(n.Len(), n.DataOffset())...)
		if i, c := n.MaxFieldCount(); i >= 0 {
			out = append(out, fmt.Sprintf("Max Field Count: %d (entry %d)", c, i))
		}
	case *StringArray:
		out = append(out, arraySummary(n.Len(), n.DataOffset())...)
	case *StructArray:
		out = append(out, arraySummary(n.Len(), n.DataOffset())...)
		out = append(out, fmt.Sprintf("Element: %s", n.ElemType()))
	case *Scalar:
		out = append(out, fmt.Sprintf("Value: %s", n))
	case *String:
		out = append(out, fmt.Sprintf("UTF8 String: %s", n.Value()))
	case *Union:
		out = append(out, fmt.Sprintf("Discriminant: %d (field %d)", n.Discriminant(), n.TypeIndex()))
		if n.Inner() != nil {
			out = append(out, fmt.Sprintf("DataTable Offset: 0x%X", n.Inner().DataTableOffset()))
		}
	}
	return out
}

func arraySummary(n, dataOff int) []string {
	out := []string{fmt.Sprintf("Table Length: %d", n)}
	if n > 0 {
		out = append(out, fmt.Sprintf("First Entry @ 0x%X", dataOff+4))
	}
	return out
}
