// Package rows reads the text rows produced by the log converter and
// reduces them to the columns the decoder needs.
package rows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// MinFields is the number of columns a converter row must have.
const MinFields = 14

// Column positions in a converter row. The payload runs from
// payloadColumn to the end of the row.
const (
	timestampColumn = 2
	appColumn       = 5
	contextColumn   = 6
	payloadColumn   = 13
)

// ErrUnparseable is returned for rows with fewer than MinFields columns.
var ErrUnparseable = errors.New("rows: unparseable row")

// ParseRow extracts the timestamp, app id, context id and payload from one
// delimiter-split row. Payload columns are joined with a single space.
func ParseRow(fields []string) (model.LogRow, error) {
	if len(fields) < MinFields {
		return model.LogRow{}, fmt.Errorf("%w: %d fields, need %d", ErrUnparseable, len(fields), MinFields)
	}
	return model.LogRow{
		Timestamp: fields[timestampColumn],
		AppID:     fields[appColumn],
		ContextID: fields[contextColumn],
		Payload:   strings.Join(fields[payloadColumn:], " "),
	}, nil
}

// NewReader returns a lenient CSV reader for converter output: rows may
// have varying field counts and stray quotes are kept as text.
func NewReader(r io.Reader, d Dialect) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = d.Comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}
