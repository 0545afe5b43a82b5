package schema

import (
	"fmt"
	"strconv"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// recordNode turns a decoded schema-less body into a record. Maps are
// used as they are. Arrays, which is how packers serialize structs by
// position, become maps keyed "0", "1", and so on.
func recordNode(codec string, n model.Node) (model.Node, error) {
	switch n.Kind() {
	case model.KindMap:
		return n, nil
	case model.KindList:
		items := n.Items()
		b := model.NewMapBuilder(len(items))
		for i, it := range items {
			b.Set(strconv.Itoa(i), it)
		}
		return b.Node(), nil
	default:
		return model.Node{}, fmt.Errorf("schema: %s body is a %s, want a map or an array", codec, n.Kind())
	}
}

// JSON is a schema-less registry for bodies holding a JSON document.
type JSON struct{}

// Lookup implements Registry.
func (JSON) Lookup(string) (Decoder, bool) {
	return decodeJSON, true
}

func decodeJSON(body []byte) (model.Node, error) {
	n, err := model.ParseJSON(body)
	if err != nil {
		return model.Node{}, fmt.Errorf("schema: decode json: %w", err)
	}
	return recordNode("json", n)
}
