package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/node"
)

var ErrPath = errors.New("path: invalid step")

// Step is one navigation step of a path expression.
//
//	2:u32        read field 2 as u32
//	2:object[]   read field 2 as an object array
//	3,4:union    read the union with discriminant field 3 and value field 4
//	0            take entry 0 of the current array
type Step struct {
	Index int
	Value int // union value field
	Type  fbfmt.TypeCode
	Array bool
	Entry bool
	Union bool
}

func (s Step) String() string {
	switch {
	case s.Entry:
		return strconv.Itoa(s.Index)
	case s.Union:
		return fmt.Sprintf("%d,%d:union", s.Index, s.Value)
	}
	return fmt.Sprintf("%d:%s", s.Index, fbfmt.FormatType(s.Type, s.Array))
}

// ParsePath splits expr on "/" into steps. Empty segments are skipped, so
// "" and "/" both denote the root.
func ParsePath(expr string) ([]Step, error) {
	var steps []Step
	for _, seg := range strings.Split(expr, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		s, err := parseStep(seg)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func parseStep(seg string) (Step, error) {
	idx, typ, ok := strings.Cut(seg, ":")
	if !ok {
		k, err := strconv.Atoi(seg)
		if err != nil || k < 0 {
			return Step{}, fmt.Errorf("%w: %q", ErrPath, seg)
		}
		return Step{Index: k, Entry: true}, nil
	}

	if strings.EqualFold(strings.TrimSpace(typ), "union") {
		t, v, ok := strings.Cut(idx, ",")
		if !ok {
			return Step{}, fmt.Errorf("%w: %q needs type,value indexes", ErrPath, seg)
		}
		ti, err1 := strconv.Atoi(t)
		vi, err2 := strconv.Atoi(v)
		if err1 != nil || err2 != nil || ti < 0 || vi < 0 {
			return Step{}, fmt.Errorf("%w: %q", ErrPath, seg)
		}
		return Step{Index: ti, Value: vi, Type: fbfmt.TypeUnion, Union: true}, nil
	}

	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 {
		return Step{}, fmt.Errorf("%w: %q", ErrPath, seg)
	}
	t, asArray, err := fbfmt.ParseType(typ)
	if err != nil {
		return Step{}, fmt.Errorf("%w: %q: %w", ErrPath, seg, err)
	}
	return Step{Index: i, Type: t, Array: asArray}, nil
}

// Navigate resolves expr from root, reading every field along the way.
func Navigate(root *node.Root, expr string) (node.Node, error) {
	steps, err := ParsePath(expr)
	if err != nil {
		return nil, err
	}
	var cur node.Node = root
	for i, s := range steps {
		next, err := apply(cur, s)
		if err != nil {
			return nil, fmt.Errorf("path %q step %d (%s): %w", expr, i, s, err)
		}
		cur = next
	}
	return cur, nil
}

func apply(cur node.Node, s Step) (node.Node, error) {
	if s.Entry {
		return entry(cur, s.Index)
	}
	t, err := tableOf(cur)
	if err != nil {
		return nil, err
	}
	if s.Union {
		return t.ReadUnion(s.Index, s.Value)
	}
	return t.Read(s.Index, s.Type, s.Array)
}

func entry(cur node.Node, k int) (node.Node, error) {
	switch n := cur.(type) {
	case *node.ObjectArray:
		return n.Entry(k)
	case *node.StringArray:
		return n.Entry(k)
	case *node.StructArray:
		return n.Entry(k)
	}
	return nil, fmt.Errorf("%w: %s is not an array", ErrPath, cur.Kind())
}

// tableOf returns the table behind a table-like node. A union steps into
// its selected arm.
func tableOf(n node.Node) (*node.Table, error) {
	switch n := n.(type) {
	case *node.Root:
		return &n.Table, nil
	case *node.Object:
		if n.Absent() {
			return nil, fmt.Errorf("%w: object is absent", ErrPath)
		}
		return &n.Table, nil
	case *node.Union:
		if n.Inner() == nil {
			return nil, fmt.Errorf("%w: union has no arm", ErrPath)
		}
		return &n.Inner().Table, nil
	}
	return nil, fmt.Errorf("%w: %s has no fields", ErrPath, n.Kind())
}
