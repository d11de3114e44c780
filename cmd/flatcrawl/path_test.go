package main

import (
	"errors"
	"fmt"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/node"
)

// buildItems builds root{0: [item{0: u32 100+i, 1: string "item<i>"}], 1: u32 42}.
func buildItems(n int) []byte {
	b := flatbuffers.NewBuilder(0)
	names := make([]flatbuffers.UOffsetT, n)
	for i := range names {
		names[i] = b.CreateString(fmt.Sprintf("item%d", i))
	}
	items := make([]flatbuffers.UOffsetT, n)
	for i := range items {
		b.StartObject(2)
		b.PrependUOffsetTSlot(1, names[i], 0)
		b.PrependUint32Slot(0, uint32(100+i), 0)
		items[i] = b.EndObject()
	}
	b.StartVector(4, n, 4)
	for i := n - 1; i >= 0; i-- {
		b.PrependUOffsetT(items[i])
	}
	vec := b.EndVector(n)
	b.StartObject(2)
	b.PrependUint32Slot(1, 42, 0)
	b.PrependUOffsetTSlot(0, vec, 0)
	b.Finish(b.EndObject())
	return b.FinishedBytes()
}

// buildHolders builds root{0: [holder{0: u8 disc, 1: arm{0..n-1: u32}}]}.
func buildHolders(arms [][2]int) []byte {
	b := flatbuffers.NewBuilder(0)
	inner := make([]flatbuffers.UOffsetT, len(arms))
	for i, a := range arms {
		b.StartObject(a[1])
		for f := a[1] - 1; f >= 0; f-- {
			b.PrependUint32Slot(f, uint32(1000+f), 0)
		}
		inner[i] = b.EndObject()
	}
	holders := make([]flatbuffers.UOffsetT, len(arms))
	for i, a := range arms {
		b.StartObject(2)
		b.PrependUOffsetTSlot(1, inner[i], 0)
		b.PrependByteSlot(0, byte(a[0]), 0)
		holders[i] = b.EndObject()
	}
	b.StartVector(4, len(holders), 4)
	for i := len(holders) - 1; i >= 0; i-- {
		b.PrependUOffsetT(holders[i])
	}
	vec := b.EndVector(len(holders))
	b.StartObject(1)
	b.PrependUOffsetTSlot(0, vec, 0)
	b.Finish(b.EndObject())
	return b.FinishedBytes()
}

func openItems(t *testing.T) *node.Session {
	t.Helper()
	s, err := node.Open(fbfmt.NewBuffer(buildItems(3)), fbfmt.Options{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   string
		want []Step
	}{
		{"", nil},
		{"/", nil},
		{"1:u32", []Step{{Index: 1, Type: fbfmt.TypeUint32}}},
		{"2:object[]/0/1:string", []Step{
			{Index: 2, Type: fbfmt.TypeObject, Array: true},
			{Index: 0, Entry: true},
			{Index: 1, Type: fbfmt.TypeString},
		}},
		{" 3,4:union / 0:table ", []Step{
			{Index: 3, Value: 4, Type: fbfmt.TypeUnion, Union: true},
			{Index: 0, Type: fbfmt.TypeObject, Array: true},
		}},
	}
	for _, tt := range tests {
		got, err := ParsePath(tt.in)
		if err != nil {
			t.Errorf("ParsePath(%q): %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("ParsePath(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParsePath(%q)[%d] = %+v, want %+v", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, in := range []string{"x:u32", "-1:u32", "1:bogus", "a", "-2", "3:union", "3,x:union"} {
		if _, err := ParsePath(in); !errors.Is(err, ErrPath) {
			t.Errorf("ParsePath(%q) err = %v, want ErrPath", in, err)
		}
	}
}

func TestStepString(t *testing.T) {
	steps, err := ParsePath("2:object[]/0/1:string/3,4:union")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2:object[]", "0", "1:string", "3,4:union"}
	for i, s := range steps {
		if s.String() != want[i] {
			t.Errorf("step %d = %q, want %q", i, s, want[i])
		}
	}
}

func TestNavigate(t *testing.T) {
	s := openItems(t)

	n, err := Navigate(s.Root(), "0:object[]/1/1:string")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	str, ok := n.(*node.String)
	if !ok {
		t.Fatalf("node = %T, want *node.String", n)
	}
	if str.Value() != "item1" {
		t.Errorf("Value = %q, want item1", str.Value())
	}

	n, err = Navigate(s.Root(), "1:u32")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if v := n.(*node.Scalar).Uint64(); v != 42 {
		t.Errorf("u32 = %d, want 42", v)
	}

	n, err = Navigate(s.Root(), "")
	if err != nil || n != node.Node(s.Root()) {
		t.Errorf("Navigate(\"\") = %v, %v; want root", n, err)
	}
}

func TestNavigate_Errors(t *testing.T) {
	s := openItems(t)
	tests := []string{
		"1:u32/0",           // scalar has no entries
		"1:u32/0:u8",        // scalar has no fields
		"0:object[]/0:u32",  // array has no fields
		"0:object[]/9",      // entry out of range
		"0:object[]/0/7:u8", // field beyond the vtable
	}
	for _, expr := range tests {
		if _, err := Navigate(s.Root(), expr); err == nil {
			t.Errorf("Navigate(%q) succeeded, want error", expr)
		}
	}
}

func TestNavigate_Union(t *testing.T) {
	s, err := node.Open(fbfmt.NewBuffer(buildHolders([][2]int{{2, 1}, {1, 2}})), fbfmt.Options{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	n, err := Navigate(s.Root(), "0:object[]/1/0,1:union/1:u32")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if v := n.(*node.Scalar).Uint64(); v != 1001 {
		t.Errorf("arm field 1 = %d, want 1001", v)
	}
}
