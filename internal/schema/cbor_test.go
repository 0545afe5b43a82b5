package schema

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestCBORDecodesMaps(t *testing.T) {
	body, err := cbor.Marshal(map[string]any{"speed": 12.5, "gear": 3, "wheels": []any{1, 2}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	dec, ok := CBOR{}.Lookup("anything.At.All")
	if !ok {
		t.Fatal("CBOR registry must resolve every name")
	}
	n, err := dec(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, _ := n.MarshalJSON()
	if string(out) != `{"gear":3,"speed":12.5,"wheels":[1,2]}` {
		t.Errorf("decoded = %s", out)
	}
}

func TestCBORArrayBodyIsPositional(t *testing.T) {
	body, _ := cbor.Marshal([]any{1.5, "on"})
	dec, _ := CBOR{}.Lookup("x")
	n, err := dec(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, _ := n.MarshalJSON()
	if string(out) != `{"0":1.5,"1":"on"}` {
		t.Errorf("decoded = %s", out)
	}
}

func TestCBORRejectsScalar(t *testing.T) {
	body, _ := cbor.Marshal(5)
	dec, _ := CBOR{}.Lookup("x")
	if _, err := dec(body); err == nil {
		t.Fatal("expected error for scalar body")
	}
	if _, err := dec([]byte{0xff, 0x00}); err == nil {
		t.Fatal("expected error for invalid cbor")
	}
}
