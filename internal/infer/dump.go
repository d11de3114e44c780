package infer

import (
	"fmt"
	"io"
	"strings"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/node"
)

// Dump writes one line per analysed field of t, then descends into fields
// that may be objects or object vectors, analysing what it finds there.
// Nesting is indented with tabs and stops at opts.EffectiveMaxDepth().
func Dump(w io.Writer, opts fbfmt.Options, t *node.Table, res *Result) error {
	return dump(w, opts, t, res, 0)
}

func dump(w io.Writer, opts fbfmt.Options, t *node.Table, res *Result, depth int) error {
	indent := strings.Repeat("\t", depth)
	sub := indent + "\t"
	for _, i := range res.Indexes() {
		obs := res.Fields[i]
		if _, err := fmt.Fprintf(w, "%s[%d] %s\n", indent, i, obs.SummaryFor(t, i)); err != nil {
			return err
		}
		if depth >= opts.EffectiveMaxDepth() {
			continue
		}

		if obs.Type.IsPotentialObject() {
			if !t.HasField(i) {
				fmt.Fprintf(w, "%sAs Object: field absent here, a sibling entry has it.\n", sub)
			} else if n, err := t.Probe(i, fbfmt.TypeObject, false); err == nil {
				child := &n.(*node.Object).Table
				inner, err := AnalyzeFields(opts, child)
				if err != nil {
					return err
				}
				if inner.Recognized() {
					fmt.Fprintf(w, "%sAs Object:\n", sub)
					if err := dump(w, opts, child, inner, depth+1); err != nil {
						return err
					}
				}
			}
		}

		if obs.Type.IsPotentialObjectArray() {
			if !t.HasField(i) {
				fmt.Fprintf(w, "%sAs Object[]: field absent here, a sibling entry has it.\n", sub)
			} else if n, err := t.Probe(i, fbfmt.TypeObject, true); err == nil {
				arr := n.(*node.ObjectArray)
				inner, err := AnalyzeFields(opts, arr.Tables()...)
				if err != nil {
					return err
				}
				if !inner.Recognized() {
					continue
				}
				k := arr.EntryWithField(0)
				if k < 0 {
					fmt.Fprintf(w, "%sProbably not an Object[]: no entry has fields.\n", sub)
					continue
				}
				e, _ := arr.Entry(k)
				fmt.Fprintf(w, "%sAs Object[] (showing index %d):\n", sub, k)
				if err := dump(w, opts, &e.Table, inner, depth+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
