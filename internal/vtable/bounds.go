package vtable

// Bound is the size range one vtable allows for a present field.
type Bound struct {
	Index   int
	Min     int
	Max     int
	Certain bool
}

// Bounds estimates per-field size bounds from the field layout alone.
//
// Writers emit fields grouped by width, so in increasing order a field is at
// least as wide as its predecessor, and in decreasing order at least as wide
// as its follower. Mixed layouts give no lower bound beyond one byte.
//
// A size is certain when the field sits at an odd offset (a single byte) or
// when it matches its neighbour (predecessor for increasing layouts,
// follower otherwise). The highest field is never certain: its derived size
// absorbs trailing padding.
func (vt *VTable) Bounds() []Bound {
	asc := vt.Ordered()
	order := Classify(asc)
	out := make([]Bound, len(asc))
	for k, f := range asc {
		b := Bound{Index: f.Index, Min: 1, Max: f.Size}
		last := k == len(asc)-1

		var neighbour *Field
		switch order {
		case OrderIncreasing:
			if k > 0 {
				neighbour = &asc[k-1]
				b.Min = neighbour.Size
			}
		case OrderDecreasing:
			if !last {
				neighbour = &asc[k+1]
				b.Min = neighbour.Size
			}
		case OrderMixed:
			if !last {
				neighbour = &asc[k+1]
			}
		}

		odd := f.Offset&1 != 0
		if odd {
			b.Max = 1
		}
		if !last && (odd || (neighbour != nil && neighbour.Size == f.Size)) {
			b.Certain = true
			b.Min = b.Max
		}
		if b.Min > b.Max {
			b.Min = b.Max
		}
		out[k] = b
	}
	return out
}
