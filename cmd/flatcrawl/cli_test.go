package main

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
)

func writeFixture(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	file := writeFixture(t, buildItems(3))
	out, err := run(t, "info", file, "-o", "json")
	require.NoError(t, err)

	var got struct {
		Session string `json:"session"`
		Size    int    `json:"size"`
		Root    struct {
			Kind string `json:"kind"`
		} `json:"root"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Session, 36)
	assert.Equal(t, len(buildItems(3)), got.Size)
	assert.Equal(t, "root", strings.ToLower(got.Root.Kind))

	out, err = run(t, "info", file)
	require.NoError(t, err)
	assert.Contains(t, out, "DataTable Offset")
}

func TestRead(t *testing.T) {
	file := writeFixture(t, buildItems(3))
	out, err := run(t, "read", file, "--path", "0:object[]/2/1:string", "--path", "1:u32")
	require.NoError(t, err)
	assert.Contains(t, out, "UTF8 String: item2")
	assert.Contains(t, out, "Value: 0x2A [42]")

	out, err = run(t, "read", file, "-p", "0:object[]", "--name", "items", "-o", "jsonl")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"name":"items"`)
}

func TestRead_Errors(t *testing.T) {
	file := writeFixture(t, buildItems(3))

	_, err := run(t, "read", file, "--path", "1:bogus")
	assert.ErrorIs(t, err, ErrPath)

	_, err = run(t, "read", file, "--name", "a")
	assert.Error(t, err)

	_, err = run(t, "read", filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)

	_, err = run(t, "read", writeFixture(t, []byte{1, 2}))
	assert.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	file := writeFixture(t, buildItems(3))
	out, err := run(t, "analyze", file, "--path", "0:object[]", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Tables     int  `json:"tables"`
		Recognized bool `json:"recognized"`
		Fields     []struct {
			Index  int      `json:"index"`
			Single []string `json:"single"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Tables)
	assert.True(t, got.Recognized)
	require.Len(t, got.Fields, 2)
	assert.Contains(t, got.Fields[1].Single, "string")

	out, err = run(t, "analyze", file, "--path", "0:object[]", "--dump", "--max-depth", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `string "item0"`)
}

func TestAnalyze_NotATable(t *testing.T) {
	file := writeFixture(t, buildItems(3))
	_, err := run(t, "analyze", file, "--path", "1:u32")
	assert.ErrorIs(t, err, ErrPath)
}

func TestUnion(t *testing.T) {
	file := writeFixture(t, buildHolders([][2]int{{1, 1}, {2, 2}, {1, 1}}))
	out, err := run(t, "union", file, "--path", "0:object[]", "-o", "yaml")
	require.NoError(t, err)

	var got struct {
		Groups []struct {
			Discriminant int   `yaml:"discriminant"`
			Indexes      []int `yaml:"indexes"`
			MaxFields    int   `yaml:"max_field_count"`
		} `yaml:"groups"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got.Groups, 2)
	assert.Equal(t, 1, got.Groups[0].Discriminant)
	assert.Equal(t, []int{0, 2}, got.Groups[0].Indexes)
	assert.Equal(t, 2, got.Groups[1].MaxFields)

	out, err = run(t, "union", file, "--path", "0:object[]", "--arm", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[1]")

	_, err = run(t, "union", file, "--path", "0:object[]", "--arm", "9")
	assert.Error(t, err)

	_, err = run(t, "union", file, "--path", "")
	assert.Error(t, err)
}

func TestRegions(t *testing.T) {
	file := writeFixture(t, buildItems(2))
	out, err := run(t, "regions", file, "-p", "0:object[]/0/1:string", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Length   int            `json:"length"`
		Coverage map[string]int `json:"coverage"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, len(buildItems(2)), got.Length)
	total := 0
	for _, n := range got.Coverage {
		total += n
	}
	assert.Equal(t, got.Length, total)
	assert.Greater(t, got.Coverage["value"], 0)
}

func TestSchema(t *testing.T) {
	file := writeFixture(t, buildItems(3))
	out, err := run(t, "schema", file, "-p", "0:object[]/0/1:string", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "string"`)
	assert.Contains(t, out, `"path": "root/0"`)
}

func TestGraph(t *testing.T) {
	file := writeFixture(t, buildItems(3))
	for _, kind := range []string{"schema", "classes", "layout"} {
		out, err := run(t, "graph", file, "-p", "0:object[]/0/0:u32", "--kind", kind)
		require.NoError(t, err, kind)
		assert.NotEmpty(t, strings.TrimSpace(out), kind)
	}

	dot := filepath.Join(t.TempDir(), "schema.dot")
	out, err := run(t, "graph", file, "--out", dot)
	require.NoError(t, err)
	assert.Empty(t, out)
	data, err := os.ReadFile(dot)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph schema")

	_, err = run(t, "graph", file, "--kind", "pie")
	assert.Error(t, err)
}

func TestConfigFlags(t *testing.T) {
	file := writeFixture(t, buildItems(1))

	_, err := run(t, "info", file, "--mode", "lenient")
	assert.Error(t, err)

	_, err = run(t, "info", file, "-o", "xml")
	assert.Error(t, err)

	cfg := filepath.Join(t.TempDir(), "flatcrawl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("output:\n  format: yaml\n"), 0644))
	out, err := run(t, "info", file, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "session: ")
}
