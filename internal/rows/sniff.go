package rows

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Dialect describes how a rows file is delimited.
type Dialect struct {
	Comma rune
}

// DefaultDialect is used when the delimiter cannot be detected.
var DefaultDialect = Dialect{Comma: ','}

// ErrNoDelimiter is returned by Sniff when no candidate delimiter appears
// consistently in the sample.
var ErrNoDelimiter = errors.New("rows: could not determine delimiter")

// candidates are tried in order; the first consistent one wins.
var candidates = []rune{',', '\t', ';', '|', ' '}

// Sniff guesses the delimiter of a rows file from a leading sample. A
// delimiter qualifies when it occurs the same non-zero number of times on
// every complete line of the sample, quoted sections excluded. A trailing
// partial line is ignored unless it is the only line.
func Sniff(sample []byte) (Dialect, error) {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return Dialect{}, ErrNoDelimiter
	}

	for _, c := range candidates {
		if consistent(lines, byte(c)) {
			return Dialect{Comma: c}, nil
		}
	}
	return Dialect{}, ErrNoDelimiter
}

func sampleLines(sample []byte) [][]byte {
	sample = bytes.ReplaceAll(sample, []byte("\r\n"), []byte("\n"))
	complete := bytes.HasSuffix(sample, []byte("\n"))
	raw := bytes.Split(bytes.TrimRight(sample, "\n"), []byte("\n"))
	if !complete && len(raw) > 1 {
		raw = raw[:len(raw)-1]
	}

	lines := raw[:0]
	for _, l := range raw {
		if len(bytes.TrimSpace(l)) > 0 {
			lines = append(lines, l)
		}
	}
	return lines
}

func consistent(lines [][]byte, delim byte) bool {
	want := -1
	for _, l := range lines {
		n := countUnquoted(l, delim)
		if n == 0 {
			return false
		}
		if want < 0 {
			want = n
		} else if n != want {
			return false
		}
	}
	return want > 0
}

func countUnquoted(line []byte, delim byte) int {
	n := 0
	quoted := false
	for _, b := range line {
		switch {
		case b == '"':
			quoted = !quoted
		case b == delim && !quoted:
			n++
		}
	}
	return n
}

// Detect peeks up to sampleSize bytes of r and sniffs the dialect, falling
// back to DefaultDialect. The returned reader yields the full stream,
// sample included. sniffed is false when the fallback was used.
func Detect(r io.Reader, sampleSize int) (br *bufio.Reader, d Dialect, sniffed bool) {
	if sampleSize <= 0 {
		sampleSize = 1024
	}
	br = bufio.NewReaderSize(r, max(sampleSize, 4096))
	sample, _ := br.Peek(sampleSize)
	d, err := Sniff(sample)
	if err != nil {
		return br, DefaultDialect, false
	}
	return br, d, true
}
