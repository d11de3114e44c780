package infer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/node"
	"flatcrawl/internal/schema"
)

func le32(v ...int) []byte {
	out := make([]byte, 0, 4*len(v))
	for _, x := range v {
		out = append(out, byte(x), byte(x>>8), byte(x>>16), byte(x>>24))
	}
	return out
}

func le16(v ...int) []byte {
	out := make([]byte, 0, 2*len(v))
	for _, x := range v {
		out = append(out, byte(x), byte(x>>8))
	}
	return out
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func open(t *testing.T, data []byte, opts fbfmt.Options) *node.Session {
	t.Helper()
	s, err := node.Open(fbfmt.NewBuffer(data), opts, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func entries(t *testing.T, s *node.Session) *node.ObjectArray {
	t.Helper()
	n, err := s.Root().ReadArrayField(0, fbfmt.TypeObject)
	if err != nil {
		t.Fatal(err)
	}
	return n.(*node.ObjectArray)
}

// bigValue is a u32 that cannot be a valid relative offset in a small buffer.
const bigValue = 0x40000000

// buildNamed builds root{0: [entry{0: u32, 1: string}]}.
func buildNamed(n int) []byte {
	b := flatbuffers.NewBuilder(0)
	names := make([]flatbuffers.UOffsetT, n)
	for i := range names {
		names[i] = b.CreateString(fmt.Sprintf("item%d", i))
	}
	tables := make([]flatbuffers.UOffsetT, n)
	for i := range tables {
		b.StartObject(2)
		b.PrependUOffsetTSlot(1, names[i], 0)
		b.PrependUint32Slot(0, uint32(bigValue+i), 0)
		tables[i] = b.EndObject()
	}
	return finishVector(b, tables)
}

// buildFlags builds root{0: [entry{0: u8 flag, 1: u32}]}. The flag sits at
// an odd offset, so its size is certain.
func buildFlags(flags ...uint8) []byte {
	b := flatbuffers.NewBuilder(0)
	tables := make([]flatbuffers.UOffsetT, len(flags))
	for i, f := range flags {
		b.StartObject(2)
		b.PrependUint32Slot(1, uint32(bigValue+i), 0)
		b.PrependByteSlot(0, f, 0xFF)
		tables[i] = b.EndObject()
	}
	return finishVector(b, tables)
}

func finishVector(b *flatbuffers.Builder, tables []flatbuffers.UOffsetT) []byte {
	b.StartVector(4, len(tables), 4)
	for i := len(tables) - 1; i >= 0; i-- {
		b.PrependUOffsetT(tables[i])
	}
	vec := b.EndVector(len(tables))
	b.StartObject(1)
	b.PrependUOffsetTSlot(0, vec, 0)
	b.Finish(b.EndObject())
	return b.FinishedBytes()
}

func bits(types ...fbfmt.TypeCode) uint32 {
	var m uint32
	for _, t := range types {
		m |= t.Bit()
	}
	return m
}

func TestAnalyzeFields_NamedEntries(t *testing.T) {
	s := open(t, buildNamed(3), fbfmt.Options{})
	res, err := AnalyzeFields(s.Options(), entries(t, s).Tables()...)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Recognized() {
		t.Fatal("Recognized = false")
	}
	if got := res.Indexes(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("Indexes = %v, want [0 1]", got)
	}

	f0 := res.Fields[0]
	if f0.Size.Min != 1 || f0.Size.Max != 4 || !f0.Size.Uncertain {
		t.Errorf("field 0 size = %+v, want 1..4 uncertain", *f0.Size)
	}
	want := bits(fbfmt.TypeUint8, fbfmt.TypeUint16, fbfmt.TypeUint32, fbfmt.TypeFloat32)
	if f0.Type.Single != want {
		t.Errorf("field 0 Single = %v, want %v", f0.Type.SingleTypes(), setBits(want, structs))
	}
	if f0.Type.Array != 0 {
		t.Errorf("field 0 Array = %v, want none", f0.Type.ArrayTypes())
	}
	if f0.Type.Observations != 3 {
		t.Errorf("Observations = %d, want 3", f0.Type.Observations)
	}

	f1 := res.Fields[1]
	if f1.Type.Single&fbfmt.TypeString.Bit() == 0 {
		t.Errorf("field 1 candidates %v lack string", f1.Type.SingleTypes())
	}
	if f1.Type.Single&bits(fbfmt.TypeUint8, fbfmt.TypeUint16, fbfmt.TypeBool) != 0 {
		t.Errorf("field 1 keeps sub-4-byte candidates: %v", f1.Type.SingleTypes())
	}
}

func TestAnalyzeFields_CandidatesOnlyShrink(t *testing.T) {
	s := open(t, buildNamed(3), fbfmt.Options{})
	tables := entries(t, s).Tables()

	first, err := AnalyzeFields(s.Options(), tables[0])
	if err != nil {
		t.Fatal(err)
	}
	all, err := AnalyzeFields(s.Options(), tables...)
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range all.Indexes() {
		a, f := all.Fields[i].Type, first.Fields[i].Type
		if a.Single&^f.Single != 0 || a.Array&^f.Array != 0 {
			t.Errorf("field %d gained bits: %v -> %v", i, f.SingleTypes(), a.SingleTypes())
		}
	}
	// entry 0 holds 0 in its low byte, entry 2 holds 2.
	if first.Fields[0].Type.Single&fbfmt.TypeBool.Bit() == 0 {
		t.Error("single instance should allow bool")
	}
	if all.Fields[0].Type.Single&fbfmt.TypeBool.Bit() != 0 {
		t.Error("bool survived a value of 2")
	}
}

func TestAnalyzeFields_Flags(t *testing.T) {
	tests := []struct {
		name  string
		flags []uint8
		want  uint32
	}{
		{"booleans", []uint8{0, 1, 1}, bits(fbfmt.TypeUint8, fbfmt.TypeBool)},
		{"bytes", []uint8{1, 0, 2}, bits(fbfmt.TypeUint8)},
	}
	for _, tt := range tests {
		s := open(t, buildFlags(tt.flags...), fbfmt.Options{})
		res, err := AnalyzeFields(s.Options(), entries(t, s).Tables()...)
		if err != nil {
			t.Fatal(err)
		}
		f := res.Fields[0]
		if f.Size.Min != 1 || f.Size.Max != 1 || f.Size.Uncertain {
			t.Errorf("%s: size = %+v, want exactly 1", tt.name, *f.Size)
		}
		if f.Type.Single != tt.want || f.Type.Array != 0 {
			t.Errorf("%s: Single = %v, want %v", tt.name, f.Type.SingleTypes(), setBits(tt.want, append(structs, fbfmt.TypeBool)))
		}
	}
}

func TestFingerprint(t *testing.T) {
	analyze := func(flags ...uint8) uint64 {
		s := open(t, buildFlags(flags...), fbfmt.Options{})
		res, err := AnalyzeFields(s.Options(), entries(t, s).Tables()...)
		if err != nil {
			t.Fatal(err)
		}
		return res.Fingerprint()
	}
	if analyze(0, 1, 1) != analyze(1, 0, 0) {
		t.Error("equal layouts hash differently")
	}
	if analyze(0, 1, 1) == analyze(1, 0, 2) {
		t.Error("different candidates hash equally")
	}
}

// conflictBuffer holds root{0: A, 1: B} where A's field 1 is certainly
// 4 bytes (u32 u32 u32) and B's is certainly 2 bytes (u32 u16 u16).
func conflictBuffer() []byte {
	return cat(
		le32(0x0C),
		le16(8, 12, 4, 8), le32(8), le32(0x14), le32(0x2C),
		le16(10, 16, 4, 8, 12), le16(0), le32(12), le32(1, 2, 3),
		le16(10, 12, 4, 8, 10), le16(0), le32(12), le32(7), le16(8, 9),
	)
}

func conflictTables(t *testing.T, s *node.Session) []*node.Table {
	t.Helper()
	var out []*node.Table
	for i := 0; i < 2; i++ {
		n, err := s.Root().ReadField(i, fbfmt.TypeObject)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, &n.(*node.Object).Table)
	}
	return out
}

func TestAnalyzeFields_InconsistencyWarn(t *testing.T) {
	s := open(t, conflictBuffer(), fbfmt.Options{Inconsistency: fbfmt.InconsistencyWarn})
	res, err := AnalyzeFields(s.Options(), conflictTables(t, s)...)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Diags) != 1 || res.Diags[0].Kind != fbfmt.DiagInconsistentSize {
		t.Fatalf("Diags = %v, want one inconsistent_size", res.Diags)
	}
	if f := res.Fields[1].Size; f.Max != 2 || f.Uncertain {
		t.Errorf("field 1 size = %+v, want max 2 certain", *f)
	}
}

func TestAnalyzeFields_InconsistencyError(t *testing.T) {
	s := open(t, conflictBuffer(), fbfmt.Options{Inconsistency: fbfmt.InconsistencyError})
	_, err := AnalyzeFields(s.Options(), conflictTables(t, s)...)
	if !errors.Is(err, schema.ErrInconsistentShape) {
		t.Fatalf("err = %v, want ErrInconsistentShape", err)
	}
}

func TestAnalyzeFields_Empty(t *testing.T) {
	res, err := AnalyzeFields(fbfmt.Options{})
	if err != nil || len(res.Fields) != 0 || res.Recognized() {
		t.Errorf("AnalyzeFields() = %+v, %v", res, err)
	}
}

func TestDump_DescendsIntoObjectArrays(t *testing.T) {
	opts := fbfmt.Options{MaxDepth: 1}
	s := open(t, buildNamed(2), opts)
	root := &s.Root().Table
	res, err := AnalyzeFields(opts, root)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Dump(&buf, opts, root, res); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "\tAs Object[] (showing index 0):\n") {
		t.Fatalf("missing object array header:\n%s", out)
	}
	for _, want := range []string{"\t[0] {1..4?}", "\t[1] {4}", `string "item0"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "\t\t") {
			t.Errorf("line beyond depth 1: %q", line)
		}
	}
}

func TestReadable(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Hello", true},
		{"tab\tand\nnewline", true},
		{"bell\x07", false},
		{"\xff\xfe", false},
		{"", true},
	}
	for _, tt := range tests {
		if got := Readable(tt.in); got != tt.want {
			t.Errorf("Readable(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
