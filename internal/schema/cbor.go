package schema

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/tinytelemetry/dltscope/internal/model"
)

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("schema: cbor decode mode: %v", err))
	}
	return dm
}()

// CBOR is a schema-less registry: every name resolves to a decoder that
// reads the body as a CBOR map or array.
type CBOR struct{}

// Lookup implements Registry.
func (CBOR) Lookup(string) (Decoder, bool) {
	return decodeCBOR, true
}

func decodeCBOR(body []byte) (model.Node, error) {
	var v any
	if err := cborDecMode.Unmarshal(body, &v); err != nil {
		return model.Node{}, fmt.Errorf("schema: decode cbor: %w", err)
	}
	return recordNode("cbor", model.FromAny(v))
}
