package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "null"
	}
}

// Value is the loosely typed data column: a number, a piece of text, or null.
// It is stored exactly as tagged; nothing converts between variants.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Null returns the absent value.
func Null() Value { return Value{} }

// Number wraps a float.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// ParseValue classifies a raw request parameter. A nil pointer is Null. A
// finite float written in its canonical decimal form is a Number, so it reads
// back byte for byte. Anything else, "007" or "1e3" included, is kept as Text.
func ParseValue(raw *string) Value {
	if raw == nil {
		return Null()
	}
	f, err := strconv.ParseFloat(*raw, 64)
	if err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && strconv.FormatFloat(f, 'f', -1, 64) == *raw {
		return Number(f)
	}
	return Text(*raw)
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Float() float64 { return v.num }
func (v Value) Str() string { return v.text }

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	default:
		return "null"
	}
}

// arg is the representation bound into SQL statements.
func (v Value) arg() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	default:
		return nil
	}
}

// Scan implements sql.Scanner for the types the sqlite driver returns.
func (v *Value) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v = Null()
	case int64:
		*v = Number(float64(x))
	case float64:
		*v = Number(x)
	case string:
		*v = Text(x)
	case []byte:
		*v = Text(string(x))
	default:
		return fmt.Errorf("unsupported data column type %T", src)
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = Null()
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("data must be a number, string or null: %w", err)
	}
	*v = Number(f)
	return nil
}
