package union

import (
	"reflect"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/node"
)

type arm struct {
	disc   uint8
	fields int
}

// buildArms builds root{0: [entry{0: u8 disc, 1: table}]} where each arm
// table holds the given number of u32 fields.
func buildArms(arms []arm) []byte {
	b := flatbuffers.NewBuilder(0)
	inner := make([]flatbuffers.UOffsetT, len(arms))
	for i, a := range arms {
		b.StartObject(a.fields)
		for j := a.fields - 1; j >= 0; j-- {
			b.PrependUint32Slot(j, uint32(1000+10*i+j), 0)
		}
		inner[i] = b.EndObject()
	}
	entries := make([]flatbuffers.UOffsetT, len(arms))
	for i, a := range arms {
		b.StartObject(2)
		b.PrependUOffsetTSlot(1, inner[i], 0)
		b.PrependByteSlot(0, a.disc, 0)
		entries[i] = b.EndObject()
	}
	b.StartVector(4, len(entries), 4)
	for i := len(entries) - 1; i >= 0; i-- {
		b.PrependUOffsetT(entries[i])
	}
	vec := b.EndVector(len(entries))
	b.StartObject(1)
	b.PrependUOffsetTSlot(0, vec, 0)
	b.Finish(b.EndObject())
	return b.FinishedBytes()
}

func array(t *testing.T, arms []arm) *node.ObjectArray {
	t.Helper()
	s, err := node.Open(fbfmt.NewBuffer(buildArms(arms)), fbfmt.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.Root().ReadArrayField(0, fbfmt.TypeObject)
	if err != nil {
		t.Fatal(err)
	}
	return n.(*node.ObjectArray)
}

var sample = []arm{{1, 1}, {1, 1}, {2, 2}, {3, 1}, {2, 1}, {1, 1}}

func TestAnalyze_Groups(t *testing.T) {
	arr := array(t, sample)
	res, err := Analyze(arr)
	if err != nil {
		t.Fatal(err)
	}

	if got := res.Discriminants(); !reflect.DeepEqual(got, []uint8{1, 2, 3}) {
		t.Errorf("Discriminants = %v, want [1 2 3]", got)
	}
	want := map[uint8][]int{1: {0, 1, 5}, 2: {2, 4}, 3: {3}}
	for d, idx := range want {
		if got := res.Entries(d); !reflect.DeepEqual(got, idx) {
			t.Errorf("Entries(%d) = %v, want %v", d, got, idx)
		}
	}
	if res.Entries(9) != nil {
		t.Error("Entries(9) should be nil")
	}

	tests := []struct {
		disc uint8
		same bool
		max  int
	}{
		{1, true, 1},
		{2, false, 2},
		{3, true, 1},
	}
	for _, tt := range tests {
		g := res.Groups[tt.disc]
		if g.SameFieldCount() != tt.same {
			t.Errorf("group %d SameFieldCount = %v, want %v (counts %v)", tt.disc, g.SameFieldCount(), tt.same, g.FieldCounts)
		}
		if g.MaxFieldCount() != tt.max {
			t.Errorf("group %d MaxFieldCount = %d, want %d", tt.disc, g.MaxFieldCount(), tt.max)
		}
	}
}

func TestAnalyze_CommitsNothing(t *testing.T) {
	arr := array(t, sample)
	if _, err := Analyze(arr); err != nil {
		t.Fatal(err)
	}
	for k, e := range arr.Entries() {
		for i, c := range e.Children() {
			if c != nil {
				t.Errorf("entry %d cached field %d", k, i)
			}
		}
	}
	if m, _ := arr.Class().MemberAt(0); m.Defined() {
		t.Errorf("member 0 typed as %s by analysis", m.TypeName())
	}
}

func TestTypes(t *testing.T) {
	got, err := Types(array(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if want := []uint8{1, 1, 2, 3, 2, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("Types = %v, want %v", got, want)
	}
}

func TestAnalyzeArm(t *testing.T) {
	res, err := Analyze(array(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	arm, err := res.AnalyzeArm(fbfmt.Options{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := arm.Indexes(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("arm 2 fields = %v, want [0 1]", got)
	}
	if !arm.Recognized() {
		t.Error("arm 2 not recognized")
	}
	if _, err := res.AnalyzeArm(fbfmt.Options{}, 7); err == nil {
		t.Error("AnalyzeArm(7) should fail")
	}
}
