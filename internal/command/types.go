// File: internal/command/types.go
package command

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBadRequest marks request bodies that fail validation.
var ErrBadRequest = errors.New("bad request")

// CommandResponse is the envelope of every JSON response.
type CommandResponse struct {
	Status string      `json:"status"` // "success" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// SelectRowResult is the data of a successful select_row.
type SelectRowResult struct {
	Row  int    `json:"row"`
	Mode string `json:"mode"`
}

// StatusView is the body of GET /status.
type StatusView struct {
	State     statewatch.TargetState `json:"state"`
	Context   navstore.Context       `json:"context"`
	HasHandle bool                   `json:"has_handle"`
}

// parseSelectRow accepts exactly {"row": <non-negative integer>}.
func parseSelectRow(body []byte) (int, error) {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return 0, fmt.Errorf("%w: body must be a JSON object", ErrBadRequest)
	}
	raw, ok := fields["row"]
	if !ok {
		return 0, fmt.Errorf("%w: missing row", ErrBadRequest)
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("%w: only row is accepted", ErrBadRequest)
	}
	// ParseInt rejects strings, fractions and exponents.
	row, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: row must be an integer", ErrBadRequest)
	}
	if row < 0 {
		return 0, fmt.Errorf("%w: row must not be negative", ErrBadRequest)
	}
	return int(row), nil
}
