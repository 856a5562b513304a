package language

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

var (
	// NULL defines the global null value
	NULL = &Null{}
	// TRUE defines the global true value, MySQL booleans are integers
	TRUE = &Integer{Value: 1}
	// FALSE defines the global false value
	FALSE = &Integer{Value: 0}
)

// ObjectType defines the object type enum
type ObjectType string

const (
	// ObjectTypeNull type used to represent the null value
	ObjectTypeNull ObjectType = "NULL"
	// ObjectTypeInteger type used to represent integers
	ObjectTypeInteger ObjectType = "INTEGER"
	// ObjectTypeFloat type used to represent floating point numbers
	ObjectTypeFloat ObjectType = "FLOAT"
	// ObjectTypeString type used to represent strings
	ObjectTypeString ObjectType = "STRING"
	// ObjectTypeList type used to represent row constructors
	ObjectTypeList ObjectType = "ROW"
	// ObjectTypeDataset type used to represent subquery results
	ObjectTypeDataset ObjectType = "DATASET"
)

// Object abstraction of the runtime values
type Object interface {
	Type() ObjectType
	Inspect() string
	ToNative() interface{}
}

// Integer is the representation of integers
type Integer struct {
	Value int64
}

// Inspect returns the readable value of the object
func (i *Integer) Inspect() string {
	return strconv.FormatInt(i.Value, 10)
}

// Type returns the object type
func (i *Integer) Type() ObjectType {
	return ObjectTypeInteger
}

// ToNative returns the go value
func (i *Integer) ToNative() interface{} {
	return i.Value
}

// Float is the representation of floating point numbers
type Float struct {
	Value float64
}

// Inspect returns the readable value of the object
func (f *Float) Inspect() string {
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// Type returns the object type
func (f *Float) Type() ObjectType {
	return ObjectTypeFloat
}

// ToNative returns the go value
func (f *Float) ToNative() interface{} {
	return f.Value
}

// String is the representation of strings
type String struct {
	Value string
}

// Inspect returns the readable value of the object
func (s *String) Inspect() string {
	return s.Value
}

// Type returns the object type
func (s *String) Type() ObjectType {
	return ObjectTypeString
}

// ToNative returns the go value
func (s *String) ToNative() interface{} {
	return s.Value
}

// Null is the representation of nil values
type Null struct{}

// Type returns the object type
func (n *Null) Type() ObjectType { return ObjectTypeNull }

// Inspect returns the readable value of the object
func (n *Null) Inspect() string {
	return "NULL"
}

// ToNative returns the go value
func (n *Null) ToNative() interface{} {
	return nil
}

// List is the representation of a row constructor (a, b, c)
type List struct {
	Value []Object
}

// Inspect returns the readable value of the object
func (l *List) Inspect() string {
	var out bytes.Buffer

	elements := []string{}
	for _, e := range l.Value {
		elements = append(elements, e.Inspect())
	}

	out.WriteString("(")
	out.WriteString(strings.Join(elements, ", "))
	out.WriteString(")")

	return out.String()
}

// Type returns the object type
func (l *List) Type() ObjectType {
	return ObjectTypeList
}

// ToNative returns the go value
func (l *List) ToNative() interface{} {
	out := make([]interface{}, 0, len(l.Value))
	for _, e := range l.Value {
		out = append(out, e.ToNative())
	}

	return out
}

func nativeBoolToBooleanObject(input bool) *Integer {
	if input {
		return TRUE
	}

	return FALSE
}

func nativeNilToNullObject(obj Object) Object {
	if obj == nil {
		return NULL
	}

	return obj
}

func isNull(obj Object) bool {
	return obj == nil || obj.Type() == ObjectTypeNull
}

func isNumeric(obj Object) bool {
	if obj == nil {
		return false
	}

	t := obj.Type()

	return t == ObjectTypeInteger || t == ObjectTypeFloat
}

var leadingNumber = regexp.MustCompile(`^\s*[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// parseLeadingFloat converts a string the way MySQL does in numeric
// context: the longest numeric prefix wins, garbage yields 0
func parseLeadingFloat(s string) float64 {
	if f, err := cast.ToFloat64E(strings.TrimSpace(s)); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}

	prefix := leadingNumber.FindString(s)
	if prefix == "" {
		return 0
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(prefix), 64)
	if err != nil {
		return 0
	}

	return f
}

// scalar descends into containers (scalar subquery results, single element
// rows) until it reaches a plain value
func scalar(obj Object) Object {
	switch o := obj.(type) {
	case Dataset:
		if len(o) == 0 || o[0].Len() == 0 {
			return NULL
		}

		return scalar(o[0].Values()[0])
	case *List:
		if len(o.Value) == 1 {
			return scalar(o.Value[0])
		}
	case nil:
		return NULL
	}

	return obj
}

func toFloat(obj Object) float64 {
	switch o := scalar(obj).(type) {
	case *Integer:
		return float64(o.Value)
	case *Float:
		return o.Value
	case *String:
		return parseLeadingFloat(o.Value)
	}

	return 0
}

func toInt(obj Object) int64 {
	switch o := scalar(obj).(type) {
	case *Integer:
		return o.Value
	case *Float:
		return int64(math.Round(o.Value))
	case *String:
		if i, err := strconv.ParseInt(strings.TrimSpace(o.Value), 10, 64); err == nil {
			return i
		}

		return int64(parseLeadingFloat(o.Value))
	}

	return 0
}

// toNumber coerces the object to a numeric object, keeping integers integral
func toNumber(obj Object) Object {
	switch o := scalar(obj).(type) {
	case *Integer, *Float:
		return o
	case *String:
		s := strings.TrimSpace(o.Value)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return &Integer{Value: i}
		}

		return &Float{Value: parseLeadingFloat(o.Value)}
	case *Null:
		return NULL
	}

	return &Integer{Value: 0}
}

func toStringValue(obj Object) string {
	obj = scalar(obj)
	if isNull(obj) {
		return ""
	}

	return obj.Inspect()
}

func isTruthy(obj Object) bool {
	switch o := scalar(obj).(type) {
	case *Integer:
		return o.Value != 0
	case *Float:
		return o.Value != 0
	case *String:
		return parseLeadingFloat(o.Value) != 0
	}

	return false
}

func newNumber(f float64) Object {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return &Integer{Value: int64(f)}
	}

	return &Float{Value: f}
}

// newUnsigned keeps values above the int64 range exact as strings
func newUnsigned(u uint64) Object {
	if u <= math.MaxInt64 {
		return &Integer{Value: int64(u)}
	}

	return &String{Value: strconv.FormatUint(u, 10)}
}
