package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Flag is a boolean column that older rows and peers write as true/false,
// 1/0 or "1"/"true". Scanning and decoding normalize all of them, so callers
// only ever see a real bool.
type Flag bool

// Truthy coerces a loosely-typed value to a bool.
// Numbers are true when non-zero; strings are false only when empty, "0" or "false".
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case Flag:
		return bool(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case []byte:
		return truthyString(string(x))
	case string:
		return truthyString(x)
	default:
		return true
	}
}

func truthyString(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "false") {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	return true
}

// Scan implements sql.Scanner.
func (f *Flag) Scan(src any) error {
	*f = Flag(Truthy(src))
	return nil
}

// Value implements driver.Valuer, always writing 0 or 1.
func (f Flag) Value() (driver.Value, error) {
	if f {
		return int64(1), nil
	}
	return int64(0), nil
}

// UnmarshalJSON accepts booleans, numbers, strings and null.
func (f *Flag) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode flag: %w", err)
	}
	switch v.(type) {
	case map[string]any, []any:
		return fmt.Errorf("decode flag: unexpected %s", data)
	}
	*f = Flag(Truthy(v))
	return nil
}

// looseInt decodes a whole number written either as a JSON number or as a
// numeric string ("42", " 42 ", "42.0"). Empty strings and null decode as 0.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode number: %w", err)
	}
	var s string
	switch x := v.(type) {
	case nil:
		*n = 0
		return nil
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
		if s == "" {
			*n = 0
			return nil
		}
	default:
		return fmt.Errorf("decode number: unexpected %s", data)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("decode number: %q is not a number", s)
	}
	*n = looseInt(f)
	return nil
}
