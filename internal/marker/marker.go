// Package marker recognizes tagged binary payloads embedded in log text.
//
// A tagged payload has the form <prefix><type name><separator><hex body>.
// Producers that log a single message type may use the single-token form
// <prefix><hex body> instead.
package marker

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tinytelemetry/dltscope/internal/model"
)

var (
	// ErrUntagged means the payload does not start with the prefix. Most
	// log rows are plain text, so callers skip these silently.
	ErrUntagged = errors.New("marker: payload is not tagged")
	// ErrMalformed means the prefix is present but the separator or the
	// type name is missing.
	ErrMalformed = errors.New("marker: malformed tagged payload")
	// ErrBadHex means the body is not an even-length hex string.
	ErrBadHex = errors.New("marker: invalid hex body")
)

// Protocol holds the marker tokens. An empty Separator selects the
// single-token form, where every tagged payload is a MessageType body.
type Protocol struct {
	Prefix      string
	Separator   string
	MessageType string
}

// Default returns the two-token protocol used by the logger library.
func Default() Protocol {
	return Protocol{Prefix: model.DefaultMarkerPrefix, Separator: model.DefaultMarkerSeparator}
}

// New returns a protocol with the given tokens.
func New(prefix, separator string) (Protocol, error) {
	if prefix == "" || separator == "" {
		return Protocol{}, fmt.Errorf("marker: prefix and separator must be non-empty")
	}
	return Protocol{Prefix: prefix, Separator: separator}, nil
}

// NewSingle returns a single-token protocol whose payloads all decode as
// messageType.
func NewSingle(prefix, messageType string) (Protocol, error) {
	if prefix == "" || messageType == "" {
		return Protocol{}, fmt.Errorf("marker: prefix and message type must be non-empty")
	}
	return Protocol{Prefix: prefix, MessageType: messageType}, nil
}

// SingleToken reports whether p uses the single-token form.
func (p Protocol) SingleToken() bool { return p.Separator == "" }

// Parse splits payload into its message type name and hex body. The type
// name ends at the first separator; everything after it is the body.
func (p Protocol) Parse(payload string) (model.TaggedPayload, error) {
	if !strings.HasPrefix(payload, p.Prefix) {
		return model.TaggedPayload{}, ErrUntagged
	}
	rest := payload[len(p.Prefix):]
	if p.SingleToken() {
		return model.TaggedPayload{MessageType: p.MessageType, HexBody: rest}, nil
	}
	name, body, ok := strings.Cut(rest, p.Separator)
	if !ok {
		return model.TaggedPayload{}, fmt.Errorf("%w: separator %q not found", ErrMalformed, p.Separator)
	}
	if name == "" {
		return model.TaggedPayload{}, fmt.Errorf("%w: empty message type", ErrMalformed)
	}
	return model.TaggedPayload{MessageType: name, HexBody: body}, nil
}

// Encode builds the tagged form of a payload. The single-token form
// ignores messageType.
func (p Protocol) Encode(messageType, hexBody string) string {
	if p.SingleToken() {
		return p.Prefix + hexBody
	}
	return p.Prefix + messageType + p.Separator + hexBody
}

// DecodeBody converts a hex body to bytes.
func DecodeBody(hexBody string) ([]byte, error) {
	b, err := hex.DecodeString(hexBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHex, err)
	}
	return b, nil
}
