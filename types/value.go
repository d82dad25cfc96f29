package types

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// ValueKind discriminates the dynamic payload union used for step data,
// step outputs and run variables.
type ValueKind string

const (
	ValueNull       ValueKind = "null"
	ValueString     ValueKind = "string"
	ValueNumber     ValueKind = "number"
	ValueBool       ValueKind = "bool"
	ValueStructured ValueKind = "structured"
)

// Value is a tagged union over the JSON-shaped payloads a step can carry or
// produce. Keeping the kind explicit makes round-tripping and comparison
// well-defined; on the wire it marshals as the raw JSON value.
type Value struct {
	Kind       ValueKind
	Str        string
	Num        float64
	Bool       bool
	Structured interface{} // map[string]interface{} or []interface{}
}

// StringValue wraps a string payload.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// NumberValue wraps a numeric payload.
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Num: n} }

// BoolValue wraps a boolean payload.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// StructuredValue wraps a decoded JSON object or array.
func StructuredValue(v interface{}) Value { return Value{Kind: ValueStructured, Structured: v} }

// ValueOf converts an arbitrary decoded JSON value into a tagged Value.
func ValueOf(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: ValueNull}
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	default:
		return StructuredValue(v)
	}
}

// Interface returns the untagged payload, suitable for expression
// environments and JSON encoding.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return v.Num
	case ValueBool:
		return v.Bool
	case ValueStructured:
		return v.Structured
	default:
		return nil
	}
}

// String renders the payload as text, the form session calls expect.
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueStructured:
		data, err := json.Marshal(v.Structured)
		if err != nil {
			return fmt.Sprintf("%v", v.Structured)
		}
		return string(data)
	default:
		return ""
	}
}

// Equal reports whether two values carry the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueStructured:
		return reflect.DeepEqual(v.Structured, other.Structured)
	default:
		return v.Str == other.Str && v.Num == other.Num && v.Bool == other.Bool
	}
}

// MarshalJSON encodes the raw payload without the tag wrapper.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON infers the kind from the JSON token type.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}
