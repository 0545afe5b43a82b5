package rows

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// Open opens a rows file for reading. Files ending in .zst or .lz4 are
// decompressed on the fly.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rows: open %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("rows: zstd reader for %s: %w", path, err)
		}
		return readCloser{Reader: dec, close: func() error {
			dec.Close()
			return f.Close()
		}}, nil
	case ".lz4":
		return readCloser{Reader: lz4.NewReader(bufio.NewReader(f)), close: f.Close}, nil
	default:
		return f, nil
	}
}
