package attr

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sealed interface representing the scalar types a system
// property or event payload may hold. Only String, Int, Float, and Bool
// implement it.
//
// Compound values (arrays, maps) are deliberately excluded: keeping the
// attribute space flat keeps instance state introspectable and makes
// trace snapshots trivially comparable.
type Value interface {
	attrValue() // Sealed - only these types implement it
	String() string
}

// String represents a string value.
type String string

func (String) attrValue() {}

func (s String) String() string { return string(s) }

// Int represents an integer value. Always int64.
type Int int64

func (Int) attrValue() {}

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Float represents a floating-point value.
//
// Floats are permitted here, unlike in content-addressed systems: simkit
// never hashes values for identity, and simulation quantities (temperature,
// moisture levels) are naturally fractional.
type Float float64

func (Float) attrValue() {}

func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Bool represents a boolean value.
type Bool bool

func (Bool) attrValue() {}

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// MarshalJSON implementations emit the underlying scalar so traces and
// CLI output read naturally.

func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

func (i Int) MarshalJSON() ([]byte, error) { return json.Marshal(int64(i)) }

func (f Float) MarshalJSON() ([]byte, error) { return json.Marshal(float64(f)) }

func (b Bool) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }

// FromAny converts a dynamically-typed value (as produced by YAML or JSON
// decoding) into a Value. Integral floats decoded from YAML stay floats;
// the decoder already distinguishes `20` from `20.0`.
//
// Returns an error for nil and for any non-scalar type.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid attribute value")
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(int64(val)), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(float64(val)), nil
	case Value:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T (must be string, int, float, or bool)", v)
	}
}

// Number reports the numeric interpretation of v.
// Returns false for String and Bool values.
func Number(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// Equal reports whether two values are equal. Int and Float values
// compare numerically, so Int(25) equals Float(25); all other
// comparisons require matching types.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	an, aok := Number(a)
	bn, bok := Number(b)
	if aok && bok {
		return an == bn
	}
	return a == b
}
