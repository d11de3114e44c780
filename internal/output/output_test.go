package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/region"
	"flatcrawl/internal/schema"
	"flatcrawl/internal/vtable"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"JSON", FormatJSON},
		{"ndjson", FormatJSONL},
		{"yml", FormatYAML},
		{" yaml ", FormatYAML},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrFormat)
}

func sampleRegions() Regions {
	return NewRegions(12, []region.Range{
		{Offset: 0, Length: 4, Category: region.CategoryPointer, Description: "root offset"},
		{Offset: 4, Length: 6, Category: region.CategoryValue},
		{Offset: 10, Length: 2, Category: region.CategoryPadding},
	})
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleRegions()))

	var got struct {
		Length int `json:"length"`
		Ranges []struct {
			Category string `json:"category"`
		} `json:"ranges"`
		Coverage map[string]int `json:"coverage"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 12, got.Length)
	require.Len(t, got.Ranges, 3)
	assert.Equal(t, "pointer", got.Ranges[0].Category)
	assert.Equal(t, 6, got.Coverage["value"])
	assert.Contains(t, buf.String(), "\n  \"length\"")
}

func TestWrite_JSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSONL, sampleRegions().Ranges))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], `"category":"padding"`)

	buf.Reset()
	require.NoError(t, Write(&buf, FormatJSONL, map[string]int{"a": 1}))
	assert.Equal(t, "{\"a\":1}\n", buf.String())
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleRegions()))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 12, got["length"])
	assert.Contains(t, buf.String(), "category: pointer")
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, sampleRegions()))
	out := buf.String()
	assert.Contains(t, out, "[0x0..0x4) (Length:   4) pointer root offset")
	assert.Contains(t, out, "padding")
	assert.Contains(t, out, "16.7%")

	buf.Reset()
	require.NoError(t, Write(&buf, FormatText, "plain"))
	assert.Equal(t, "plain\n", buf.String())
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, Format("xml"), 1)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "regions.json")
	require.NoError(t, WriteFile(path, FormatJSON, sampleRegions()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestNewSchema(t *testing.T) {
	reg := schema.NewRegistry(fbfmt.Options{}, nil, nil, nil)
	vt, err := vtable.Decode(fbfmt.NewBuffer([]byte{8, 0, 12, 0, 4, 0, 8, 0}), 0)
	require.NoError(t, err)
	root := reg.Root()
	require.NoError(t, root.AssociateVTable(vt))
	require.NoError(t, root.SetMemberType(1, fbfmt.TypeString, false))
	require.NoError(t, root.SetMemberName(1, "label"))

	s := NewSchema(reg)
	require.Len(t, s.Classes, 1)
	c := s.Classes[0]
	assert.Equal(t, "Root", c.Name)
	assert.Equal(t, "root", c.Path)
	assert.Equal(t, 1, c.VTables)
	assert.Len(t, c.Fingerprint, 16)
	require.Len(t, c.Members, 2)
	assert.Equal(t, "label", c.Members[1].Name)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, s))
	assert.Contains(t, buf.String(), `"type": "string"`)

	assert.Contains(t, s.Text(), "Root (root) data=12 vtables=1")
}
