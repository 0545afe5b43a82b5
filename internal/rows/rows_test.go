package rows

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func row(n int) []string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = "f" + string(rune('a'+i))
	}
	return fields
}

func TestParseRow(t *testing.T) {
	fields := row(16)
	fields[2] = "10:00:01.000100"
	fields[5] = "APP1"
	fields[6] = "CTX1"
	fields[13] = "$%.&Sample&*.%08"
	fields[14] = "tail"
	fields[15] = "end"

	got, err := ParseRow(fields)
	if err != nil {
		t.Fatalf("ParseRow: %v", err)
	}
	if got.Timestamp != "10:00:01.000100" || got.AppID != "APP1" || got.ContextID != "CTX1" {
		t.Errorf("ParseRow = %+v", got)
	}
	if got.Payload != "$%.&Sample&*.%08 tail end" {
		t.Errorf("Payload = %q", got.Payload)
	}
}

func TestParseRowExactlyFourteen(t *testing.T) {
	got, err := ParseRow(row(14))
	if err != nil {
		t.Fatalf("ParseRow: %v", err)
	}
	if got.Payload != "fn" {
		t.Errorf("Payload = %q, want fn", got.Payload)
	}
}

func TestParseRowTooShort(t *testing.T) {
	for _, n := range []int{0, 1, 13} {
		if _, err := ParseRow(row(n)); !errors.Is(err, ErrUnparseable) {
			t.Errorf("ParseRow(%d fields) error = %v, want ErrUnparseable", n, err)
		}
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		sample  string
		want    rune
		wantErr bool
	}{
		{"comma", "a,b,c\nd,e,f\n", ',', false},
		{"tab", "a\tb\tc\nd\te\tf\n", '\t', false},
		{"semicolon", "a;b;c\nd;e;f\n", ';', false},
		{"space", "1 2 3\n4 5 6\n", ' ', false},
		{"quoted comma ignored", "\"a,x\";b;c\nd;e;f\n", ';', false},
		{"truncated last line ignored", "a,b,c\nd,e,f\ng,h", ',', false},
		{"crlf", "a|b\r\nc|d\r\n", '|', false},
		{"inconsistent", "a,b\nc,d,e\n", 0, true},
		{"empty", "", 0, true},
		{"no delimiter", "abc\ndef\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Sniff([]byte(tt.sample))
			if tt.wantErr {
				if !errors.Is(err, ErrNoDelimiter) {
					t.Fatalf("Sniff error = %v, want ErrNoDelimiter", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sniff: %v", err)
			}
			if d.Comma != tt.want {
				t.Errorf("Sniff = %q, want %q", d.Comma, tt.want)
			}
		})
	}
}

func TestDetectFallsBackAndKeepsStream(t *testing.T) {
	br, d, sniffed := Detect(strings.NewReader("single-line-no-delims"), 1024)
	if sniffed {
		t.Error("expected fallback")
	}
	if d != DefaultDialect {
		t.Errorf("dialect = %+v, want default", d)
	}
	all, _ := io.ReadAll(br)
	if string(all) != "single-line-no-delims" {
		t.Errorf("stream = %q", all)
	}
}

func TestNewReaderLenient(t *testing.T) {
	in := "a;b\"x;c\nd;e\n"
	cr := NewReader(strings.NewReader(in), Dialect{Comma: ';'})
	var counts []int
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		counts = append(counts, len(rec))
	}
	if len(counts) != 2 || counts[0] != 3 || counts[1] != 2 {
		t.Errorf("field counts = %v, want [3 2]", counts)
	}
}

func TestOpenDecompresses(t *testing.T) {
	dir := t.TempDir()
	content := "a,b,c\nd,e,f\n"

	plain := filepath.Join(dir, "rows.csv")
	if err := os.WriteFile(plain, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	zst := filepath.Join(dir, "rows.csv.zst")
	zf, err := os.Create(zst)
	if err != nil {
		t.Fatal(err)
	}
	zw, err := zstd.NewWriter(zf)
	if err != nil {
		t.Fatal(err)
	}
	zw.Write([]byte(content))
	zw.Close()
	zf.Close()

	lz := filepath.Join(dir, "rows.csv.lz4")
	lf, err := os.Create(lz)
	if err != nil {
		t.Fatal(err)
	}
	lw := lz4.NewWriter(lf)
	lw.Write([]byte(content))
	lw.Close()
	lf.Close()

	for _, p := range []string{plain, zst, lz} {
		rc, err := Open(p)
		if err != nil {
			t.Fatalf("Open(%s): %v", p, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if string(got) != content {
			t.Errorf("%s = %q, want %q", filepath.Base(p), got, content)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("expected error")
	}
}
