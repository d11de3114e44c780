package node

import (
	"fmt"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"flatcrawl/internal/fbfmt"
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

func open(t *testing.T, data []byte, opts fbfmt.Options) *Session {
	t.Helper()
	s, err := Open(fbfmt.NewBuffer(data), opts, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// scenarioBuffer: root with field 0 = u32 0x2A and field 1 absent.
//
//	0x00 uoffset -> 0x0C
//	0x04 vtable {8, 8, 4, 0}
//	0x0C soffset 8
//	0x10 u32 0x2A
func scenarioBuffer() []byte {
	return cat(le32(12), le16(8, 8, 4, 0), le32(8), le32(0x2A))
}

// helloBuffer: root with field 0 = string "Hello".
//
//	0x00 uoffset -> 0x0C
//	0x04 vtable {6, 8, 4} + 2 bytes padding
//	0x0C soffset 8
//	0x10 uoffset -> 0x14
//	0x14 05 00 00 00 "Hello" 00
func helloBuffer() []byte {
	return cat(le32(12), le16(6, 8, 4), []byte{0, 0}, le32(8), le32(4), le32(5), []byte("Hello\x00"))
}

// sharedStringBuffer: fields 0 and 1 both point at the same string, so
// reading both as strings is an inconsistent interpretation.
func sharedStringBuffer() []byte {
	return cat(le32(12), le16(8, 12, 4, 8), le32(8), le32(8), le32(4), le32(3), []byte("abc\x00"))
}

// entrySpec describes one table of an object vector built by buildEntries.
type entrySpec struct {
	value uint32
	name  string // empty: store badRef in slot 1 instead of a string
}

const badRef = 0x7FFFFFF0

// buildEntries builds root{0: [entry]} with entry{0: u32, 1: string}.
func buildEntries(specs []entrySpec) []byte {
	b := flatbuffers.NewBuilder(0)
	names := make([]flatbuffers.UOffsetT, len(specs))
	for i, sp := range specs {
		if sp.name != "" {
			names[i] = b.CreateString(sp.name)
		}
	}
	entries := make([]flatbuffers.UOffsetT, len(specs))
	for i, sp := range specs {
		b.StartObject(2)
		if sp.name != "" {
			b.PrependUOffsetTSlot(1, names[i], 0)
		} else {
			b.PrependUint32Slot(1, badRef, 0)
		}
		b.PrependUint32Slot(0, sp.value, 0)
		entries[i] = b.EndObject()
	}
	b.StartVector(4, len(entries), 4)
	for i := len(entries) - 1; i >= 0; i-- {
		b.PrependUOffsetT(entries[i])
	}
	vec := b.EndVector(len(entries))
	b.StartObject(1)
	b.PrependUOffsetTSlot(0, vec, 0)
	root := b.EndObject()
	b.FinishWithFileIdentifier(root, []byte("TEST"))
	return b.FinishedBytes()
}

func namedEntries(n int) []entrySpec {
	out := make([]entrySpec, n)
	for i := range out {
		out[i] = entrySpec{value: uint32(100 + i), name: fmt.Sprintf("item%d", i)}
	}
	return out
}

// buildUnions builds root{0: [entry]} with entry{0: u8 type, 1: table},
// where arm 1 tables hold one u16 and arm 2 tables hold two u32.
func buildUnions(discs []uint8) []byte {
	b := flatbuffers.NewBuilder(0)
	inner := make([]flatbuffers.UOffsetT, len(discs))
	for i, d := range discs {
		if d == 1 {
			b.StartObject(1)
			b.PrependUint16Slot(0, uint16(10+i), 0)
		} else {
			b.StartObject(2)
			b.PrependUint32Slot(1, uint32(20+i), 0)
			b.PrependUint32Slot(0, uint32(30+i), 0)
		}
		inner[i] = b.EndObject()
	}
	entries := make([]flatbuffers.UOffsetT, len(discs))
	for i, d := range discs {
		b.StartObject(2)
		b.PrependUOffsetTSlot(1, inner[i], 0)
		b.PrependByteSlot(0, d, 0)
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
