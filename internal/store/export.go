package store

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// Encoding names for Export.
const (
	EncodingJSON = "json"
	EncodingYAML = "yaml"
)

// Format selects the export encoding and whether the output is
// zstd-compressed.
type Format struct {
	Encoding   string
	Compressed bool
}

// String returns the format name, e.g. "json" or "yaml.zst".
func (f Format) String() string {
	if f.Compressed {
		return f.Encoding + ".zst"
	}
	return f.Encoding
}

// ParseFormat accepts "json", "yaml" or "yml", optionally followed by
// ".zst". Empty means JSON.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var f Format
	if strings.HasSuffix(s, ".zst") {
		f.Compressed = true
		s = strings.TrimSuffix(s, ".zst")
	}
	switch s {
	case "", EncodingJSON:
		f.Encoding = EncodingJSON
	case EncodingYAML, "yml":
		f.Encoding = EncodingYAML
	default:
		return Format{}, fmt.Errorf("store: unknown export format %q", s)
	}
	return f, nil
}

// FormatForPath picks the format from a target file name such as
// out.json, out.yaml or out.json.zst.
func FormatForPath(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	compressed := strings.HasSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".zst")
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(name), "."))
	if err != nil {
		return Format{}, err
	}
	f.Compressed = compressed
	return f, nil
}

// Export writes the store in the given format. JSON is indented by four
// spaces with non-ASCII text written as is.
func (s *Store) Export(w io.Writer, f Format) (err error) {
	if f.Compressed {
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return fmt.Errorf("store: zstd writer: %w", zerr)
		}
		defer func() {
			if cerr := zw.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("store: zstd close: %w", cerr)
			}
		}()
		w = zw
	}

	root := s.Node()
	switch f.Encoding {
	case EncodingJSON, "":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		if err := enc.Encode(root); err != nil {
			return fmt.Errorf("store: encode json: %w", err)
		}
	case EncodingYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return fmt.Errorf("store: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("store: encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("store: unknown export encoding %q", f.Encoding)
	}
	return nil
}
