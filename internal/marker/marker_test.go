package marker

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	p := Default()
	tests := []struct {
		name     string
		payload  string
		wantType string
		wantHex  string
		wantErr  error
	}{
		{"simple", "$%.&Sample&*.%0801", "Sample", "0801", nil},
		{"qualified", "$%.&pkg.Msg&*.%", "pkg.Msg", "", nil},
		{"first separator wins", "$%.&A&*.%B&*.%C", "A", "B&*.%C", nil},
		{"plain text", "engine started", "", "", ErrUntagged},
		{"prefix not at start", "x $%.&A&*.%00", "", "", ErrUntagged},
		{"no separator", "$%.&Sample0801", "", "", ErrMalformed},
		{"empty type", "$%.&&*.%0801", "", "", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.payload, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.payload, err)
			}
			if got.MessageType != tt.wantType || got.HexBody != tt.wantHex {
				t.Errorf("Parse(%q) = (%q, %q), want (%q, %q)", tt.payload, got.MessageType, got.HexBody, tt.wantType, tt.wantHex)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	protocols := []Protocol{Default(), {Prefix: "ZXd6", Separator: "7pQ3"}}
	cases := [][2]string{
		{"Sample", "0a0b0c"},
		{"logger.Status", ""},
		{"T", "ff"},
	}
	for _, p := range protocols {
		for _, c := range cases {
			got, err := p.Parse(p.Encode(c[0], c[1]))
			if err != nil {
				t.Fatalf("%+v: round trip %v: %v", p, c, err)
			}
			if got.MessageType != c[0] || got.HexBody != c[1] {
				t.Errorf("%+v: round trip = (%q, %q), want (%q, %q)", p, got.MessageType, got.HexBody, c[0], c[1])
			}
		}
	}
}

func TestNewRejectsEmptyTokens(t *testing.T) {
	if _, err := New("", "x"); err == nil {
		t.Error("expected error for empty prefix")
	}
	if _, err := New("x", ""); err == nil {
		t.Error("expected error for empty separator")
	}
	if _, err := New("<<", ">>"); err != nil {
		t.Errorf("New: %v", err)
	}
}

func TestSingleToken(t *testing.T) {
	p, err := NewSingle("Z9dX7pQ3", "Sample")
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}
	got, err := p.Parse("Z9dX7pQ394a3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.MessageType != "Sample" || got.HexBody != "94a3" {
		t.Errorf("Parse = %+v", got)
	}
	if _, err := p.Parse("hello"); !errors.Is(err, ErrUntagged) {
		t.Errorf("Parse(untagged) err = %v, want ErrUntagged", err)
	}
	if enc := p.Encode("ignored", "0a0b"); enc != "Z9dX7pQ30a0b" {
		t.Errorf("Encode = %q", enc)
	}

	if _, err := NewSingle("", "Sample"); err == nil {
		t.Error("expected error for empty prefix")
	}
	if _, err := NewSingle("Z9dX7pQ3", ""); err == nil {
		t.Error("expected error for empty message type")
	}
}

func TestDecodeBody(t *testing.T) {
	b, err := DecodeBody("08011002")
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(b) != 4 || b[0] != 0x08 || b[3] != 0x02 {
		t.Errorf("DecodeBody = %x", b)
	}
	for _, bad := range []string{"0", "zz", "08 01"} {
		if _, err := DecodeBody(bad); !errors.Is(err, ErrBadHex) {
			t.Errorf("DecodeBody(%q) error = %v, want ErrBadHex", bad, err)
		}
	}
}
