package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidValue tags coercion failures so callers can test with
// errors.Is.
var ErrInvalidValue = fmt.Errorf("invalid value")

func invalid(v any, want string) error {
	return fmt.Errorf("%w %v (%T) for %s", ErrInvalidValue, v, v, want)
}

func castInt(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return parseInt(string(n))
	case string:
		return parseInt(n)
	}
	return nil, invalid(v, "integer")
}

func parseInt(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, invalid(s, "integer")
	}
	return n, nil
}

func castFloat(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case []byte:
		return parseFloat(string(n))
	case string:
		return parseFloat(n)
	}
	return nil, invalid(v, "decimal")
}

func parseFloat(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, invalid(s, "decimal")
	}
	return f, nil
}

func castString(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case uuid.UUID:
		return s.String(), nil
	case fmt.Stringer:
		return s.String(), nil
	case int64, int, float64, bool:
		return fmt.Sprint(s), nil
	}
	return nil, invalid(v, "string")
}

func castBool(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case []byte:
		return parseBool(string(b))
	case string:
		return parseBool(b)
	}
	return nil, invalid(v, "boolean")
}

func parseBool(s string) (any, error) {
	switch s {
	case "":
		return nil, nil
	case "0", "f", "F", "false", "FALSE":
		return false, nil
	case "1", "t", "T", "true", "TRUE":
		return true, nil
	}
	return nil, invalid(s, "boolean")
}

// timeLayouts are tried in order when a datetime arrives as text.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999Z07:00",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func castTime(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	case int64:
		// seconds since epoch
		return time.Unix(t, 0), nil
	}
	return nil, invalid(v, "datetime")
}

func parseTime(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, invalid(s, "datetime")
}

func castJSON(v any) (any, error) {
	var raw []byte
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		// already decoded
		return v, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, invalid(string(raw), "json")
	}
	return out, nil
}

func uncastJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, invalid(v, "json")
	}
	return string(raw), nil
}

func castBytes(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case uuid.UUID:
		return b[:], nil
	}
	return nil, invalid(v, "binary")
}

// FormatTime renders t with the given subsecond precision, in the
// 'YYYY-MM-DD HH:MM:SS.mmm' form the formatters inline into SQL.
func FormatTime(t time.Time, precision int) string {
	switch {
	case precision <= 0:
		return t.Format("2006-01-02 15:04:05")
	case precision <= 3:
		return t.Format("2006-01-02 15:04:05.000")
	default:
		return t.Format("2006-01-02 15:04:05.000000")
	}
}
