// Package infer guesses field sizes and types from a set of sibling tables
// believed to share one shape.
//
// Analysis runs in three passes: merge per-instance size bounds, derive
// the broad shapes each merged size allows, then decode every field of
// every instance as each surviving candidate and drop the ones that fail.
package infer

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/node"
	"flatcrawl/internal/schema"
)

// FieldObservations is everything learned about one field index.
type FieldObservations struct {
	Size *SizeRange     `json:"size" yaml:"size"`
	Type TypeCandidates `json:"type" yaml:"type"`
}

func (o *FieldObservations) observe(t *node.Table, i int) {
	if !t.HasField(i) {
		return
	}
	o.Type.observe(t, i, o.Size)
}

// Summary renders "{size} candidates".
func (o *FieldObservations) Summary() string {
	return fmt.Sprintf("{%s} %s", o.Size.Summary(), o.Type.Summary())
}

// SummaryFor is Summary with candidates decoded from field i of t.
func (o *FieldObservations) SummaryFor(t *node.Table, i int) string {
	return fmt.Sprintf("{%s} %s", o.Size.Summary(), o.Type.SummaryFor(t, i))
}

// Result maps field index to observations.
type Result struct {
	Fields map[int]*FieldObservations `json:"fields" yaml:"fields"`
	Diags  []fbfmt.Diag               `json:"diags,omitempty" yaml:"diags,omitempty"`
}

// Recognized reports whether any field has a surviving candidate. A set
// with none is probably not a table at all.
func (r *Result) Recognized() bool {
	for _, f := range r.Fields {
		if f.Type.Recognized() {
			return true
		}
	}
	return false
}

// Indexes returns the analysed field indexes in ascending order.
func (r *Result) Indexes() []int {
	out := make([]int, 0, len(r.Fields))
	for i := range r.Fields {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Fingerprint hashes the inferred layout. Buffers whose tables produce
// equal fingerprints most likely share a schema.
func (r *Result) Fingerprint() uint64 {
	var buf []byte
	for _, i := range r.Indexes() {
		f := r.Fields[i]
		var unc uint32
		if f.Size.Uncertain {
			unc = 1
		}
		for _, v := range []uint32{uint32(i), uint32(f.Size.Min), uint32(f.Size.Max), unc, f.Type.Single, f.Type.Array} {
			buf = binary.LittleEndian.AppendUint32(buf, v)
		}
	}
	return xxh3.Hash(buf)
}

// AnalyzeFields infers field sizes and candidate types from tables.
//
// A certain size contradicted by another instance follows
// opts.Inconsistency: with InconsistencyError the analysis fails with
// schema.ErrInconsistentShape, otherwise the contradiction is recorded in
// Result.Diags and the narrower bound wins.
func AnalyzeFields(opts fbfmt.Options, tables ...*node.Table) (*Result, error) {
	res := &Result{Fields: make(map[int]*FieldObservations)}
	if len(tables) == 0 {
		return res, nil
	}
	log := tables[0].Session().Logger()

	for _, t := range tables {
		if err := res.scanSizes(opts, log, t); err != nil {
			return nil, err
		}
	}

	for _, f := range res.Fields {
		f.Type.guess = f.Size.Guess()
	}

	indexes := res.Indexes()
	for _, t := range tables {
		for _, i := range indexes {
			if i < t.FieldCount() {
				res.Fields[i].observe(t, i)
			}
		}
	}

	log.WithFields(logrus.Fields{
		"tables":     len(tables),
		"fields":     len(res.Fields),
		"recognized": res.Recognized(),
	}).Debug("field analysis complete")
	return res, nil
}

func (r *Result) scanSizes(opts fbfmt.Options, log logrus.FieldLogger, t *node.Table) error {
	for _, b := range t.VTable().Bounds() {
		f, ok := r.Fields[b.Index]
		if !ok {
			r.Fields[b.Index] = &FieldObservations{Size: newSizeRange(b)}
			continue
		}
		if f.Size.Contradicts(b) {
			msg := fmt.Sprintf("field %d: size %d..%d contradicts certain size %d", b.Index, b.Min, b.Max, f.Size.Max)
			if opts.Inconsistency == fbfmt.InconsistencyError {
				return fmt.Errorf("infer: table at 0x%x: %w: %s", t.DataTableOffset(), schema.ErrInconsistentShape, msg)
			}
			r.Diags = append(r.Diags, fbfmt.Diag{Offset: t.DataTableOffset(), Kind: fbfmt.DiagInconsistentSize, Msg: msg})
			log.WithField("table", fmt.Sprintf("0x%x", t.DataTableOffset())).Warn(msg)
		}
		f.Size.Observe(b)
	}
	return nil
}
