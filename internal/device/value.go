package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType is the representation of a channel value.
type ValueType int

// Value types.
const (
	TypeBool ValueType = iota
	TypeInt
	TypeFloat
)

// String returns the lower-case type name.
func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeInt:
		return "integer"
	case TypeFloat:
		return "float"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// centi is the fixed-point scale of controller readings.
const centi = 100

// Value is a single channel value.
//
// Floats are held in hundredths so the controller's fixed-point readings
// survive formatting and parsing unchanged.
type Value struct {
	typ ValueType
	raw int64
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	if b {
		return Value{typ: TypeBool, raw: 1}
	}
	return Value{typ: TypeBool}
}

// IntValue returns an integer value.
func IntValue(i int64) Value {
	return Value{typ: TypeInt, raw: i}
}

// CentiValue returns a float value from hundredths (1976 is 19.76).
func CentiValue(c int64) Value {
	return Value{typ: TypeFloat, raw: c}
}

// Type returns the value's representation.
func (v Value) Type() ValueType { return v.typ }

// Bool returns the value as a boolean. Non-zero numbers are true.
func (v Value) Bool() bool { return v.raw != 0 }

// Int returns integer values as-is and floats truncated.
func (v Value) Int() int64 {
	if v.typ == TypeFloat {
		return v.raw / centi
	}
	return v.raw
}

// Float returns the value as a float64.
func (v Value) Float() float64 {
	if v.typ == TypeFloat {
		return float64(v.raw) / centi
	}
	return float64(v.raw)
}

// Centi returns the value in hundredths.
func (v Value) Centi() int64 {
	if v.typ == TypeFloat {
		return v.raw
	}
	return v.raw * centi
}

// String formats the value as an MQTT payload: 0/1 for booleans, shortest
// decimal otherwise.
func (v Value) String() string {
	switch v.typ {
	case TypeBool:
		if v.raw != 0 {
			return "1"
		}
		return "0"
	case TypeFloat:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	default:
		return strconv.FormatInt(v.raw, 10)
	}
}

// Domain describes the values a channel carries.
type Domain struct {
	Type    ValueType
	Bounded bool
	Min     float64
	Max     float64
}

// Boolean is the domain of on/off channels.
func Boolean() Domain {
	return Domain{Type: TypeBool}
}

// Float is an unbounded float domain.
func Float() Domain {
	return Domain{Type: TypeFloat}
}

// FloatRange is a float domain limited to [min, max].
func FloatRange(minVal, maxVal float64) Domain {
	return Domain{Type: TypeFloat, Bounded: true, Min: minVal, Max: maxVal}
}

// String describes the domain, e.g. "float [0, 10]".
func (d Domain) String() string {
	if d.Bounded {
		return fmt.Sprintf("%s [%g, %g]", d.Type, d.Min, d.Max)
	}
	return d.Type.String()
}

// Check verifies that v belongs to the domain.
func (d Domain) Check(v Value) error {
	if v.typ != d.Type {
		return fmt.Errorf("%w: %s value for %s channel", ErrInvalidValue, v.typ, d.Type)
	}
	if d.Bounded {
		f := v.Float()
		if f < d.Min || f > d.Max {
			return fmt.Errorf("%w: %s outside %s", ErrInvalidValue, v, d)
		}
	}
	return nil
}

// Parse decodes an MQTT payload into a value of this domain.
//
// Booleans accept 0/1, true/false and on/off (case-insensitive). Numbers
// are decimal; floats are rounded to hundredths.
func (d Domain) Parse(payload string) (Value, error) {
	s := strings.TrimSpace(payload)

	var v Value
	switch d.Type {
	case TypeBool:
		switch strings.ToLower(s) {
		case "1", "true", "on":
			v = BoolValue(true)
		case "0", "false", "off":
			v = BoolValue(false)
		default:
			return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, payload)
		}
	case TypeInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, payload)
		}
		v = IntValue(i)
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, payload)
		}
		v = CentiValue(int64(math.Round(f * centi)))
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %s", ErrInvalidValue, d.Type)
	}

	if err := d.Check(v); err != nil {
		return Value{}, err
	}
	return v, nil
}
