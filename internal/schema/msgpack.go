package schema

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// maxMsgPackDepth bounds container nesting in one body.
const maxMsgPackDepth = 64

// MsgPack is a schema-less registry for MessagePack bodies. Map keys keep
// their encoded order.
type MsgPack struct{}

// Lookup implements Registry.
func (MsgPack) Lookup(string) (Decoder, bool) {
	return decodeMsgPack, true
}

func decodeMsgPack(body []byte) (model.Node, error) {
	r := bytes.NewReader(body)
	dec := msgpack.NewDecoder(r)
	n, err := msgpackNode(dec, 0)
	if err != nil {
		return model.Node{}, fmt.Errorf("schema: decode msgpack: %w", err)
	}
	if r.Len() > 0 {
		return model.Node{}, fmt.Errorf("schema: decode msgpack: %d trailing bytes", r.Len())
	}
	return recordNode("msgpack", n)
}

func msgpackNode(dec *msgpack.Decoder, depth int) (model.Node, error) {
	if depth > maxMsgPackDepth {
		return model.Node{}, fmt.Errorf("nesting deeper than %d", maxMsgPackDepth)
	}
	c, err := dec.PeekCode()
	if err != nil {
		return model.Node{}, err
	}

	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return model.Node{}, err
		}
		b := model.NewMapBuilder(n)
		for i := 0; i < n; i++ {
			k, err := dec.DecodeInterfaceLoose()
			if err != nil {
				return model.Node{}, err
			}
			v, err := msgpackNode(dec, depth+1)
			if err != nil {
				return model.Node{}, err
			}
			b.Set(msgpackKey(k), v)
		}
		return b.Node(), nil

	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return model.Node{}, err
		}
		items := make([]model.Node, 0, n)
		for i := 0; i < n; i++ {
			v, err := msgpackNode(dec, depth+1)
			if err != nil {
				return model.Node{}, err
			}
			items = append(items, v)
		}
		return model.List(items...), nil

	default:
		v, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return model.Node{}, err
		}
		return model.FromAny(v), nil
	}
}

func msgpackKey(k any) string {
	switch x := k.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
