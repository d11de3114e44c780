package region

// ReportOptions controls gap classification in Report.
type ReportOptions struct {
	// PaddingHeuristic reports a 2-byte gap as alignment padding instead of
	// unknown data when the gap starts two bytes past a 4-byte boundary
	// (Offset%4 == 2), meaning the previous claim ended unaligned and the
	// gap ends on the next boundary. It is a guess, not a format rule.
	PaddingHeuristic bool
}

const (
	descUnknown = "unknown data"
	descPadding = "alignment padding (heuristic)"
)

// Report walks the claims in offset order and fills every gap up to bufLen
// with a CategoryUnknown entry (or CategoryPadding, see ReportOptions).
// Sub ranges are listed but never close a gap.
func (t *Tracker) Report(bufLen int, opts ReportOptions) []Range {
	var out []Range
	cursor := 0
	gap := func(end int) {
		if end <= cursor {
			return
		}
		g := Range{Offset: cursor, Length: end - cursor, Category: CategoryUnknown, Description: descUnknown}
		if opts.PaddingHeuristic && g.Length == 2 && g.Offset%4 == 2 {
			g.Category = CategoryPadding
			g.Description = descPadding
		}
		out = append(out, g)
	}
	for _, r := range t.ranges {
		if r.Sub {
			out = append(out, r)
			continue
		}
		gap(r.Offset)
		out = append(out, r)
		if r.End() > cursor {
			cursor = r.End()
		}
	}
	gap(bufLen)
	return out
}

// Coverage sums report bytes per category, ignoring sub ranges.
func Coverage(report []Range) map[Category]int {
	out := make(map[Category]int)
	for _, r := range report {
		if !r.Sub {
			out[r.Category] += r.Length
		}
	}
	return out
}
