// Package ingest normalizes raw device payloads into backend-agnostic
// records: best-effort field coercion, timestamp resolution and sort-key
// construction.
package ingest

import (
	"strconv"

	"github.com/valyala/fastjson"
)

// ToFloat converts a raw field to a float64. Devices emit numbers both as
// JSON numbers and as quoted strings; anything else yields def.
func ToFloat(v *fastjson.Value, def float64) float64 {
	f, ok := floatValue(v)
	if !ok {
		return def
	}
	return f
}

// ToInt converts a raw field to an int. Values that only parse as floats are
// truncated toward zero, so counters arriving as 5.0 still count.
func ToInt(v *fastjson.Value, def int) int {
	f, ok := floatValue(v)
	if !ok {
		return def
	}
	return int(f)
}

// ToDecimalString converts a raw numeric field to its decimal text form, for
// backends that take measurements as exact decimal strings rather than binary
// floats.
func ToDecimalString(v *fastjson.Value, def string) string {
	f, ok := floatValue(v)
	if !ok {
		return def
	}
	return FormatDecimal(f)
}

// FormatDecimal renders a float in plain decimal notation, never scientific,
// matching what the storage backends expect for numeric text values.
func FormatDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToString converts a raw field to a string. Numbers are rendered in decimal;
// null and structured values yield def.
func ToString(v *fastjson.Value, def string) string {
	if v == nil {
		return def
	}
	switch v.Type() {
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return def
		}
		return string(b)
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return def
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case fastjson.TypeTrue:
		return "true"
	case fastjson.TypeFalse:
		return "false"
	default:
		return def
	}
}

func floatValue(v *fastjson.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
