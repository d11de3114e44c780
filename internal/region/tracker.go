package region

import (
	"fmt"
	"sort"
)

// Tracker is the set of committed claims over one buffer.
//
// Hard claims (neither Sub nor padding) never overlap each other. Padding
// claims are soft: a hard claim that lands on padding shrinks or splits it,
// and a padding claim that lands on a hard claim is dropped. VTable claims
// are shared by every object referencing the same location and are
// installed through Retain / Release.
type Tracker struct {
	ranges []Range
	refs   map[int]*vtRef
}

type vtRef struct {
	r     Range
	count int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{refs: make(map[int]*vtRef)}
}

func less(a, b Range) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	return a.Length < b.Length
}

func (t *Tracker) insert(r Range) {
	i := sort.Search(len(t.ranges), func(i int) bool { return less(r, t.ranges[i]) })
	t.ranges = append(t.ranges, Range{})
	copy(t.ranges[i+1:], t.ranges[i:])
	t.ranges[i] = r
}

// firstHardOverlap returns the first hard claim overlapping r.
func (t *Tracker) firstHardOverlap(r Range) (Range, bool) {
	for _, e := range t.ranges {
		if e.Offset >= r.End() {
			break
		}
		if e.hard() && e.Overlaps(r) {
			return e, true
		}
	}
	return Range{}, false
}

// Claim installs r. A zero-length claim is a no-op. A hard claim that
// intersects an existing hard claim fails with *OverlapError and leaves the
// tracker unchanged.
func (t *Tracker) Claim(r Range) error {
	if r.Length < 0 || r.Offset < 0 {
		return fmt.Errorf("region: invalid range %s", r)
	}
	if r.Length == 0 {
		return nil
	}
	switch {
	case r.Sub:
		t.insert(r)
	case r.Category == CategoryPadding:
		if _, hit := t.firstHardOverlap(r); !hit {
			t.insert(r)
		}
	default:
		if e, hit := t.firstHardOverlap(r); hit {
			return &OverlapError{Claim: r, Existing: e}
		}
		t.carvePadding(r)
		t.insert(r)
	}
	return nil
}

// carvePadding removes the part of every padding claim covered by r.
func (t *Tracker) carvePadding(r Range) {
	var kept []Range
	var pieces []Range
	for _, e := range t.ranges {
		if e.Category != CategoryPadding || e.Sub || !e.Overlaps(r) {
			kept = append(kept, e)
			continue
		}
		if e.Offset < r.Offset {
			left := e
			left.Length = r.Offset - e.Offset
			pieces = append(pieces, left)
		}
		if e.End() > r.End() {
			right := e
			right.Offset = r.End()
			right.Length = e.End() - r.End()
			pieces = append(pieces, right)
		}
	}
	if len(kept) == len(t.ranges) {
		return
	}
	t.ranges = kept
	for _, p := range pieces {
		t.insert(p)
	}
}

// ClaimAll installs every range or none of them.
func (t *Tracker) ClaimAll(rs ...Range) error {
	snap := t.Snapshot()
	for _, r := range rs {
		if err := t.Claim(r); err != nil {
			t.Restore(snap)
			return err
		}
	}
	return nil
}

// Unclaim removes the claim exactly matching r and reports whether one was
// found. For padding, every padding fragment left inside r is removed.
func (t *Tracker) Unclaim(r Range) bool {
	if r.Category == CategoryPadding && !r.Sub {
		found := false
		kept := t.ranges[:0:0]
		for _, e := range t.ranges {
			if e.Category == CategoryPadding && !e.Sub && r.Contains(e) {
				found = true
				continue
			}
			kept = append(kept, e)
		}
		t.ranges = kept
		return found
	}
	for i, e := range t.ranges {
		if e.Offset == r.Offset && e.Length == r.Length && e.Category == r.Category && e.Sub == r.Sub {
			t.ranges = append(t.ranges[:i], t.ranges[i+1:]...)
			return true
		}
	}
	return false
}

// Retain takes a reference on the vtable claim r (keyed by r.Offset),
// installing it on first reference.
func (t *Tracker) Retain(r Range) error {
	if ref, ok := t.refs[r.Offset]; ok {
		if ref.r.Length != r.Length {
			return &OverlapError{Claim: r, Existing: ref.r}
		}
		ref.count++
		return nil
	}
	if err := t.Claim(r); err != nil {
		return err
	}
	t.refs[r.Offset] = &vtRef{r: r, count: 1}
	return nil
}

// Release drops a reference on the vtable claim at offset and removes the
// claim when the last reference goes. It reports whether the claim was
// removed.
func (t *Tracker) Release(offset int) bool {
	ref, ok := t.refs[offset]
	if !ok {
		return false
	}
	ref.count--
	if ref.count > 0 {
		return false
	}
	delete(t.refs, offset)
	t.Unclaim(ref.r)
	return true
}

// RefCount returns the number of references held on the vtable claim at
// offset.
func (t *Tracker) RefCount(offset int) int {
	if ref, ok := t.refs[offset]; ok {
		return ref.count
	}
	return 0
}

// Overlapping returns every hard claim that intersects r.
func (t *Tracker) Overlapping(r Range) []Range {
	var out []Range
	for _, e := range t.ranges {
		if e.Offset >= r.End() {
			break
		}
		if e.hard() && e.Overlaps(r) {
			out = append(out, e)
		}
	}
	return out
}

// Ranges returns a copy of every claim in offset order.
func (t *Tracker) Ranges() []Range {
	out := make([]Range, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// Len returns the number of installed claims.
func (t *Tracker) Len() int { return len(t.ranges) }

// Snapshot captures tracker state for a later Restore.
type Snapshot struct {
	ranges []Range
	refs   map[int]vtRef
}

// Snapshot copies the current state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		ranges: make([]Range, len(t.ranges)),
		refs:   make(map[int]vtRef, len(t.refs)),
	}
	copy(s.ranges, t.ranges)
	for k, v := range t.refs {
		s.refs[k] = *v
	}
	return s
}

// Restore rolls the tracker back to s.
func (t *Tracker) Restore(s Snapshot) {
	t.ranges = make([]Range, len(s.ranges))
	copy(t.ranges, s.ranges)
	t.refs = make(map[int]*vtRef, len(s.refs))
	for k, v := range s.refs {
		t.refs[k] = &v
	}
}
