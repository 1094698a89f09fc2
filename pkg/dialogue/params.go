package dialogue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a ParamValue holds.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// ParamValue is a closed variant for action parameter values: a string, a
// number, a boolean, or a nested mapping of further ParamValues. The zero
// value is invalid and cannot be marshalled.
type ParamValue struct {
	kind Kind
	str  string
	num  float64
	b    bool
	m    Params
}

// Params maps action parameter names to their values.
type Params map[string]ParamValue

func String(s string) ParamValue   { return ParamValue{kind: KindString, str: s} }
func Number(n float64) ParamValue  { return ParamValue{kind: KindNumber, num: n} }
func Bool(b bool) ParamValue       { return ParamValue{kind: KindBool, b: b} }
func Map(m Params) ParamValue      { return ParamValue{kind: KindMap, m: m} }
func (v ParamValue) Kind() Kind    { return v.kind }
func (v ParamValue) IsValid() bool { return v.kind != 0 }

// AsString returns the string value and whether the variant is a string.
func (v ParamValue) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric value and whether the variant is a number.
func (v ParamValue) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean value and whether the variant is a bool.
func (v ParamValue) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsMap returns the nested mapping and whether the variant is a map.
func (v ParamValue) AsMap() (Params, bool) { return v.m, v.kind == KindMap }

// String renders the value for display. Strings are unquoted and nested
// maps print as {k=v, ...} in key order.
func (v ParamValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindMap:
		parts := make([]string, 0, len(v.m))
		for _, k := range v.m.Keys() {
			parts = append(parts, k+"="+v.m[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<invalid>"
	}
}

// Equal reports deep equality between two values.
func (v ParamValue) Equal(o ParamValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindMap:
		return v.m.Equal(o.m)
	}
	return true
}

// Equal reports deep equality between two parameter maps. A nil map equals
// an empty one.
func (p Params) Equal(o Params) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON always emits an object, "{}" for a nil map.
func (p Params) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]ParamValue(p))
}

func (v ParamValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return v.m.MarshalJSON()
	default:
		return nil, fmt.Errorf("cannot marshal invalid param value")
	}
}

// UnmarshalJSON accepts strings, numbers, booleans and objects. Null and
// arrays are rejected so they surface as malformed responses.
func (v *ParamValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty param value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{':
		var m map[string]ParamValue
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*v = Map(Params(m))
	case 'n':
		return fmt.Errorf("null is not a valid param value")
	case '[':
		return fmt.Errorf("arrays are not valid param values")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}
