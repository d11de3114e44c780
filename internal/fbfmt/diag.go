// Package fbfmt provides the shared buffer reader, type codes and diagnostics
// used by every FlatBuffers crawling package.
package fbfmt

import "fmt"

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagInconsistentSize DiagKind = "inconsistent_size"
	DiagPropagation      DiagKind = "propagation"
)

// Diag records a non-fatal issue encountered while crawling.
type Diag struct {
	Offset int      `json:"offset" yaml:"offset"`
	Kind   DiagKind `json:"kind" yaml:"kind"`
	Msg    string   `json:"msg" yaml:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset int, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset int, kind DiagKind, format string, args ...any) {
	d.Add(offset, kind, fmt.Sprintf(format, args...))
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Truncate drops every diagnostic recorded after the first n.
func (d *Diags) Truncate(n int) {
	if n < len(d.items) {
		d.items = d.items[:n]
	}
}

// Mode controls how failures of sibling re-decodes are handled.
type Mode int

const (
	ModeStrict     Mode = iota // first sibling failure aborts the whole operation
	ModeBestEffort             // failing siblings are skipped and recorded as diags
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "best-effort"
}

// InconsistencyPolicy decides what happens when a previously certain size
// is contradicted by a later observation.
type InconsistencyPolicy int

const (
	InconsistencyWarn  InconsistencyPolicy = iota // record a diag and keep the narrower bound
	InconsistencyError                            // fail the operation, leave state untouched
)

func (p InconsistencyPolicy) String() string {
	if p == InconsistencyError {
		return "error"
	}
	return "warn"
}

// Options controls crawling behavior across packages.
type Options struct {
	Mode          Mode
	Inconsistency InconsistencyPolicy
	MaxDepth      int // recursion cap for analysis dumps; 0 = use default
}

// DefaultMaxDepth is the default recursion cap for analysis dumps.
const DefaultMaxDepth = 5

func (o Options) EffectiveMaxDepth() int {
	if o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}
