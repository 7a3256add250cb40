package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arloliu/livequery"
)

// parseFilter parses "field==value" or "field!=value". The value is decoded as
// JSON when possible and taken as a plain string otherwise.
func parseFilter(expr string) (livequery.Filter, error) {
	for _, op := range []livequery.Op{livequery.OpNotEqual, livequery.OpEqual} {
		field, raw, ok := strings.Cut(expr, string(op))
		if !ok {
			continue
		}
		field = strings.TrimSpace(field)
		if field == "" {
			return livequery.Filter{}, fmt.Errorf("filter %q: empty field", expr)
		}

		return livequery.Filter{Field: field, Op: op, Value: parseValue(strings.TrimSpace(raw))}, nil
	}

	return livequery.Filter{}, fmt.Errorf("filter %q: expected field==value or field!=value", expr)
}

// parseValue decodes raw as JSON, falling back to the raw string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}

	return v
}

// stateLine is the JSON form of a state printed by watch and get.
type stateLine struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newStateLine(s livequery.State) stateLine {
	line := stateLine{Status: s.Status.String(), Data: s.Data}
	if s.Err != nil {
		line.Error = s.Err.Error()
	}

	return line
}
