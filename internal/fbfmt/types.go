package fbfmt

import (
	"errors"
	"fmt"
	"strings"
)

// TypeCode identifies how a field's bytes are interpreted.
type TypeCode uint8

const (
	TypeNone TypeCode = iota
	TypeBool
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeObject
	TypeUnion
)

// ErrUnknownType is returned by ParseType for unrecognized type names.
var ErrUnknownType = errors.New("fbfmt: unknown type")

var typeNames = [...]string{
	TypeNone:    "none",
	TypeBool:    "bool",
	TypeInt8:    "s8",
	TypeUint8:   "u8",
	TypeInt16:   "s16",
	TypeUint16:  "u16",
	TypeInt32:   "s32",
	TypeUint32:  "u32",
	TypeInt64:   "s64",
	TypeUint64:  "u64",
	TypeFloat32: "f32",
	TypeFloat64: "f64",
	TypeString:  "string",
	TypeObject:  "object",
	TypeUnion:   "union",
}

func (t TypeCode) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t TypeCode) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Size returns the inline byte width of a scalar type. Reference types
// (string, object, union) occupy a 4-byte relative pointer.
func (t TypeCode) Size() int {
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	case TypeString, TypeObject, TypeUnion:
		return 4
	}
	return 0
}

// IsScalar reports whether t is stored inline as a fixed-width value.
func (t TypeCode) IsScalar() bool { return t >= TypeBool && t <= TypeFloat64 }

// IsReference reports whether t is stored as a relative pointer.
func (t TypeCode) IsReference() bool { return t == TypeString || t == TypeObject || t == TypeUnion }

// IsFloat reports whether t is an IEEE-754 type.
func (t TypeCode) IsFloat() bool { return t == TypeFloat32 || t == TypeFloat64 }

// IsSigned reports whether t is a signed integer type.
func (t TypeCode) IsSigned() bool {
	return t == TypeInt8 || t == TypeInt16 || t == TypeInt32 || t == TypeInt64
}

// Valid reports whether t names a readable node type.
func (t TypeCode) Valid() bool { return t > TypeNone && t <= TypeUnion }

// Bit returns the candidate-mask bit for t.
func (t TypeCode) Bit() uint32 { return 1 << uint32(t) }

// FormatType renders t with an optional array suffix.
func FormatType(t TypeCode, asArray bool) string {
	if asArray {
		return t.String() + "[]"
	}
	return t.String()
}

const maxTypeNameLen = 20

// ParseType parses a type name such as "u32", "string[]" or "table".
// A bare "table" always denotes an object array.
func ParseType(text string) (TypeCode, bool, error) {
	text = strings.TrimSpace(text)
	if len(text) > maxTypeNameLen {
		return TypeNone, false, fmt.Errorf("%w: %q too long", ErrUnknownType, text)
	}
	asArray := false
	if strings.HasSuffix(text, "[]") {
		asArray = true
		text = text[:len(text)-2]
	}
	lower := strings.ToLower(text)
	if lower == "table" {
		return TypeObject, true, nil
	}
	t := typeFromName(lower)
	if t == TypeNone {
		return TypeNone, false, fmt.Errorf("%w: %q", ErrUnknownType, text)
	}
	return t, asArray, nil
}

func typeFromName(s string) TypeCode {
	switch s {
	case "bool":
		return TypeBool
	case "sbyte", "s8":
		return TypeInt8
	case "short", "s16":
		return TypeInt16
	case "int", "s32":
		return TypeInt32
	case "long", "s64":
		return TypeInt64
	case "byte", "u8", "i8":
		return TypeUint8
	case "ushort", "u16", "i16":
		return TypeUint16
	case "uint", "u32", "i32":
		return TypeUint32
	case "ulong", "u64", "i64":
		return TypeUint64
	case "float", "single", "f32":
		return TypeFloat32
	case "double", "f64":
		return TypeFloat64
	case "string", "str":
		return TypeString
	case "object", "obj":
		return TypeObject
	case "union":
		return TypeUnion
	}
	return TypeNone
}
