// Package output writes crawl results as text, JSON, JSONL or YAML.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format selects an encoding.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ErrFormat is returned for unknown format names.
var ErrFormat = errors.New("output: unknown format")

// ParseFormat accepts a format name, case-insensitively. "yml" is an
// alias for yaml and "" means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrFormat, s)
}

// Texter is implemented by records with a human-readable rendering.
type Texter interface {
	Text() string
}

// Write encodes v to w. JSONL writes one line per element when v is a
// slice, and a single line otherwise. Text uses v's Text method when it
// has one, or fmt's %v.
func Write(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, v)
	case FormatJSONL:
		return writeJSONL(w, v)
	case FormatYAML:
		return writeYAML(w, v)
	case FormatText:
		return writeText(w, v)
	}
	return fmt.Errorf("%w: %q", ErrFormat, f)
}

// WriteFile encodes v into path, creating parent directories.
func WriteFile(path string, f Format, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer file.Close()
	if err := Write(file, f, v); err != nil {
		return fmt.Errorf("output: %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode json: %w", err)
	}
	return nil
}

func writeJSONL(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("output: encode jsonl: %w", err)
		}
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := enc.Encode(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("output: encode jsonl line %d: %w", i, err)
		}
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode yaml: %w", err)
	}
	return enc.Close()
}

func writeText(w io.Writer, v any) error {
	var text string
	switch v := v.(type) {
	case Texter:
		text = v.Text()
	case string:
		text = v
	default:
		text = fmt.Sprint(v)
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w, text)
	return err
}
