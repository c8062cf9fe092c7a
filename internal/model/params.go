package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind is the scalar kind held by a Value.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
)

// Value is a reflex parameter: a string, a number, or a boolean.
// The zero Value is invalid and encodes as JSON null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the scalar kind, or 0 for the zero Value.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload and whether v holds a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether v holds a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the boolean payload and whether v holds a boolean.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// String renders the value for logs and reasoning text.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Objects, arrays and null are
// rejected: parameters are scalars only.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("parameter: empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("parameter: %w", err)
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("parameter: %w", err)
		}
		*v = Bool(b)
	case 'n', '{', '[':
		return fmt.Errorf("parameter: unsupported value %s", data)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("parameter: %w", err)
		}
		*v = Number(n)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindNumber:
		return v.num, nil
	case KindBool:
		return v.b, nil
	default:
		return nil, nil
	}
}

// UnmarshalYAML implements yaml.Unmarshaler using the YAML core schema tags.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("parameter: line %d: expected a scalar", node.Line)
	}
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int", "!!float":
		var n float64
		if err := node.Decode(&n); err != nil {
			return err
		}
		*v = Number(n)
	case "!!null":
		return fmt.Errorf("parameter: line %d: null is not a valid parameter", node.Line)
	default:
		*v = String(node.Value)
	}
	return nil
}

// Params is the open key to scalar parameter bag carried by a reflex.
type Params map[string]Value

// Clone returns a shallow copy. Values are immutable so this is a deep copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Get returns the parameter rendered as a string, or "" when absent.
func (p Params) Get(key string) string {
	return p[key].String()
}
