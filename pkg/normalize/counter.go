package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// suffixTruncated marks a counter rounded down to a multiple of 10,000
	suffixTruncated = "万+"
	// suffixExact marks a counter expressed in units of 10,000
	suffixExact = "万"
)

// ParseCount converts an upstream counter to an integer. Counters arrive as
// JSON numbers, numeric strings, or strings abbreviated with 万 / 万+.
func ParseCount(v interface{}) (int64, error) {
	switch c := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(c), nil
	case int64:
		return c, nil
	case float64:
		return int64(c), nil
	case json.Number:
		if n, err := c.Int64(); err == nil {
			return n, nil
		}
		f, err := c.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid counter %q: %w", c, err)
		}
		return int64(f), nil
	case json.RawMessage:
		return parseRawCount(c)
	case string:
		return parseCountString(c)
	default:
		return 0, fmt.Errorf("unsupported counter type %T", v)
	}
}

func parseRawCount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("invalid counter %s: %w", raw, err)
	}
	return ParseCount(v)
}

func parseCountString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var prefix string
	switch {
	case strings.HasSuffix(s, suffixTruncated):
		prefix = strings.TrimSuffix(s, suffixTruncated)
	case strings.HasSuffix(s, suffixExact):
		prefix = strings.TrimSuffix(s, suffixExact)
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid counter %q: %w", s, err)
		}
		return n, nil
	}

	// "3万" reads as 3 followed by four zeros; "1.2万" needs the multiplication
	if strings.Contains(prefix, ".") {
		f, err := strconv.ParseFloat(prefix, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid counter %q: %w", s, err)
		}
		return int64(math.Round(f * 10000)), nil
	}
	n, err := strconv.ParseInt(prefix+"0000", 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter %q: %w", s, err)
	}
	return n, nil
}
