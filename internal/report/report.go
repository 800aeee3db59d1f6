// Package report renders a completed run for people and for files.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/perfreview/internal/orchestrator"
)

// Format is a file encoding for run results.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json or yaml)", s)
}

// FormatFor picks the format implied by path's extension, falling back to def.
func FormatFor(path string, def Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return def
}

// Encode writes res to w in the given format.
func Encode(w io.Writer, res *orchestrator.Result, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		return nil
	}
}

// WriteFile writes res to path, replacing any previous file atomically.
func WriteFile(fs afero.Fs, path string, res *orchestrator.Result, format Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	tmp, err := afero.TempFile(fs, filepath.Dir(path), ".perfreview-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if err := Encode(tmp, res, format); err != nil {
		tmp.Close()
		fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := fs.Rename(tmp.Name(), path); err != nil {
		fs.Remove(tmp.Name())
		return fmt.Errorf("renaming report: %w", err)
	}
	return nil
}
