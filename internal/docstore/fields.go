package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the fixed-width UTC layout used for stored timestamps, so
// that string comparison matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// EncodeFields serializes fields as a JSON object.
func EncodeFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("EncodeFields: %w", err)
	}
	return data, nil
}

// DecodeFields parses a JSON object, keeping numbers as json.Number.
func DecodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("DecodeFields: %w", err)
	}
	return fields, nil
}

// MergeFields returns a copy of base with updates applied on top.
func MergeFields(base, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// String reads a string field. ok is false when the field is absent or null.
func String(fields map[string]any, key string) (value string, ok bool, err error) {
	raw, present := fields[key]
	if !present || raw == nil {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, fmt.Errorf("field %q: expected string, got %T", key, raw)
	}
	return s, true, nil
}

// Bool reads a boolean field.
func Bool(fields map[string]any, key string) (value bool, ok bool, err error) {
	raw, present := fields[key]
	if !present || raw == nil {
		return false, false, nil
	}
	b, isBool := raw.(bool)
	if !isBool {
		return false, false, fmt.Errorf("field %q: expected bool, got %T", key, raw)
	}
	return b, true, nil
}

// Decimal reads a numeric field without going through float64 where possible.
func Decimal(fields map[string]any, key string) (value decimal.Decimal, ok bool, err error) {
	raw, present := fields[key]
	if !present || raw == nil {
		return decimal.Zero, false, nil
	}
	d, convErr := toDecimal(raw)
	if convErr != nil {
		return decimal.Zero, false, fmt.Errorf("field %q: %w", key, convErr)
	}
	return d, true, nil
}

// Int reads an integral numeric field.
func Int(fields map[string]any, key string) (value int, ok bool, err error) {
	d, ok, err := Decimal(fields, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if !d.IsInteger() {
		return 0, false, fmt.Errorf("field %q: expected integer, got %s", key, d)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) || d.LessThan(decimal.NewFromInt(math.MinInt32)) {
		return 0, false, fmt.Errorf("field %q: %s out of range", key, d)
	}
	return int(d.IntPart()), true, nil
}

// Time reads a timestamp stored as an RFC 3339 string. Timestamps written
// without a zone offset are taken as UTC.
func Time(fields map[string]any, key string) (value time.Time, ok bool, err error) {
	s, ok, err := String(fields, key)
	if err != nil || !ok || s == "" {
		return time.Time{}, false, err
	}
	t, parseErr := ParseTime(s)
	if parseErr != nil {
		return time.Time{}, false, fmt.Errorf("field %q: %w", key, parseErr)
	}
	return t, true, nil
}

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	if local, localErr := time.Parse("2006-01-02T15:04:05.999999999", s); localErr == nil {
		return local, nil
	}
	if day, dayErr := time.Parse(time.DateOnly, s); dayErr == nil {
		return day, nil
	}
	return time.Time{}, err
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	default:
		return decimal.Zero, fmt.Errorf("expected number, got %T", v)
	}
}

// Compare orders two field values. Strings compare lexically and numbers
// numerically; ok is false when the values are not comparable.
func Compare(a, b any) (result int, ok bool) {
	if as, isString := a.(string); isString {
		bs, bIsString := b.(string)
		if !bIsString {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if ab, isBool := a.(bool); isBool {
		bb, bIsBool := b.(bool)
		if !bIsBool || ab != bb {
			return boolOrder(ab) - boolOrder(bb), bIsBool
		}
		return 0, true
	}
	ad, err := toDecimal(a)
	if err != nil {
		return 0, false
	}
	bd, err := toDecimal(b)
	if err != nil {
		return 0, false
	}
	return ad.Cmp(bd), true
}

func boolOrder(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Matches reports whether fields satisfy every filter.
func Matches(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, present := fields[f.Field]
		if !present || v == nil {
			return false
		}
		cmp, ok := Compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if cmp != 0 {
				return false
			}
		case OpGreaterThanEqual:
			if cmp < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SQLValue converts a filter value to something database/sql and BigQuery
// parameters accept.
func SQLValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case decimal.Decimal:
		return n.InexactFloat64()
	case time.Time:
		return FormatTime(n)
	default:
		return v
	}
}
