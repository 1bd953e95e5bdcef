package schemas

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// numberJSON decodes numbers as json.Number so integral and fractional values
// can be told apart.
var numberJSON = jsoniter.Config{UseNumber: true}.Froze()

// Namespace selects which environment a reply addresses.
type Namespace string

const (
	NamespaceBrowser  Namespace = "browser"
	NamespaceTerminal Namespace = "terminal"
)

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceBrowser, NamespaceTerminal:
		return true
	}
	return false
}

// ValueKind is the runtime type tag of a parameter Value.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "none"
	}
}

// Value is a tagged union over the scalar types a model may put in a command's
// parameters. The zero Value is the explicit "no value" marker.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    bool
}

func NoValue() Value              { return Value{} }
func IntValue(i int64) Value      { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value  { return Value{kind: KindFloat, f: f} }
func StringValue(s string) Value  { return Value{kind: KindString, s: s} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func (v Value) Kind() ValueKind   { return v.kind }
func (v Value) IsNone() bool      { return v.kind == KindNone }
func (v Value) Int() int64        { return v.i }
func (v Value) Float() float64    { return v.f }
func (v Value) StringVal() string { return v.s }
func (v Value) Bool() bool        { return v.b }

// String renders the value the way it would appear in a transcript.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<none>"
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return numberJSON.Marshal(v.i)
	case KindFloat:
		return numberJSON.Marshal(v.f)
	case KindString:
		return numberJSON.Marshal(v.s)
	case KindBool:
		return numberJSON.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Integral numbers decode as int,
// all other numbers as float. Null, arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := numberJSON.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case json.Number:
		lit := t.String()
		if !strings.ContainsAny(lit, ".eE") {
			i, err := t.Int64()
			if err == nil {
				*v = IntValue(i)
				return nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", lit, err)
		}
		*v = FloatValue(f)
	case string:
		*v = StringValue(t)
	case bool:
		*v = BoolValue(t)
	case nil:
		return fmt.Errorf("parameter value must not be null")
	default:
		return fmt.Errorf("unsupported parameter value of type %T", raw)
	}
	return nil
}

// Reply is the structured answer the model must produce on every turn.
type Reply struct {
	Rationale  string           `json:"rationale"`
	Namespace  Namespace        `json:"namespace"`
	Command    string           `json:"command"`
	Parameters map[string]Value `json:"parameters"`
}
