// Package functions implements the SQL function registry used by the
// register machine's Function, AggStep and AggFinal instructions.
package functions

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// Value represents a SQL value with its type.
type Value interface {
	// Type returns the type of the value
	Type() ValueType

	// AsInt64 returns the value as int64
	AsInt64() int64

	// AsFloat64 returns the value as float64
	AsFloat64() float64

	// AsString returns the value as string
	AsString() string

	// AsBlob returns the value as byte slice
	AsBlob() []byte

	// IsNull returns true if the value is NULL
	IsNull() bool
}

// ValueType represents SQL value types.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeInteger
	TypeFloat
	TypeText
	TypeBlob
)

// String returns the string representation of the type
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "real"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Function is the interface for scalar SQL functions.
type Function interface {
	// Name returns the function name
	Name() string

	// NumArgs returns the number of arguments (-1 for variadic)
	NumArgs() int

	// Call executes the function with the given arguments
	Call(args []Value) (Value, error)
}

// AggregateFunction accumulates one group. A new instance is created for
// every group, so implementations keep their state in fields.
type AggregateFunction interface {
	// Step processes one row of data
	Step(args []Value) error

	// Final returns the final aggregate result
	Final() (Value, error)
}

// AggregateFactory creates the accumulator for one group.
type AggregateFactory func() AggregateFunction

// ScalarFunc is a simple scalar function implementation.
type ScalarFunc struct {
	name    string
	numArgs int
	fn      func(args []Value) (Value, error)
}

// NewScalarFunc creates a new scalar function.
func NewScalarFunc(name string, numArgs int, fn func(args []Value) (Value, error)) *ScalarFunc {
	return &ScalarFunc{
		name:    name,
		numArgs: numArgs,
		fn:      fn,
	}
}

func (f *ScalarFunc) Name() string {
	return f.name
}

func (f *ScalarFunc) NumArgs() int {
	return f.numArgs
}

func (f *ScalarFunc) Call(args []Value) (Value, error) {
	if f.numArgs >= 0 && len(args) != f.numArgs {
		return nil, fmt.Errorf("%s() takes exactly %d arguments (%d given)", f.name, f.numArgs, len(args))
	}
	return f.fn(args)
}

// SimpleValue is a basic implementation of the Value interface.
type SimpleValue struct {
	typ    ValueType
	intVal int64
	fltVal float64
	strVal string
	blbVal []byte
}

// NewNullValue creates a NULL value
func NewNullValue() Value {
	return &SimpleValue{typ: TypeNull}
}

// NewIntValue creates an integer value
func NewIntValue(v int64) Value {
	return &SimpleValue{typ: TypeInteger, intVal: v}
}

// NewFloatValue creates a float value
func NewFloatValue(v float64) Value {
	return &SimpleValue{typ: TypeFloat, fltVal: v}
}

// NewTextValue creates a text value
func NewTextValue(v string) Value {
	return &SimpleValue{typ: TypeText, strVal: v}
}

// NewBlobValue creates a blob value
func NewBlobValue(v []byte) Value {
	return &SimpleValue{typ: TypeBlob, blbVal: v}
}

func (v *SimpleValue) Type() ValueType {
	return v.typ
}

func (v *SimpleValue) AsInt64() int64 {
	switch v.typ {
	case TypeInteger:
		return v.intVal
	case TypeFloat:
		return int64(v.fltVal)
	case TypeText:
		i, _ := utf.ParseInt([]byte(v.strVal))
		return i
	case TypeBlob:
		i, _ := utf.ParseInt(v.blbVal)
		return i
	default:
		return 0
	}
}

func (v *SimpleValue) AsFloat64() float64 {
	switch v.typ {
	case TypeFloat:
		return v.fltVal
	case TypeInteger:
		return float64(v.intVal)
	case TypeText:
		f, _ := utf.ParseFloat([]byte(v.strVal))
		return f
	case TypeBlob:
		f, _ := utf.ParseFloat(v.blbVal)
		return f
	default:
		return 0.0
	}
}

func (v *SimpleValue) AsString() string {
	switch v.typ {
	case TypeText:
		return v.strVal
	case TypeInteger:
		return strconv.FormatInt(v.intVal, 10)
	case TypeFloat:
		return utf.FormatReal(v.fltVal)
	case TypeBlob:
		return string(v.blbVal)
	default:
		return ""
	}
}

func (v *SimpleValue) AsBlob() []byte {
	switch v.typ {
	case TypeBlob:
		return v.blbVal
	case TypeNull:
		return nil
	default:
		return []byte(v.AsString())
	}
}

func (v *SimpleValue) IsNull() bool {
	return v.typ == TypeNull
}

// Registry holds all registered functions.
type Registry struct {
	functions  map[string]Function
	aggregates map[string]AggregateFactory
}

// NewRegistry creates a new function registry.
func NewRegistry() *Registry {
	return &Registry{
		functions:  make(map[string]Function),
		aggregates: make(map[string]AggregateFactory),
	}
}

// Register registers a scalar function.
func (r *Registry) Register(fn Function) {
	r.functions[strings.ToLower(fn.Name())] = fn
}

// RegisterAggregate registers an aggregate by name.
func (r *Registry) RegisterAggregate(name string, factory AggregateFactory) {
	r.aggregates[strings.ToLower(name)] = factory
}

// Lookup finds a scalar function by case-insensitive name.
func (r *Registry) Lookup(name string) (Function, bool) {
	fn, ok := r.functions[strings.ToLower(name)]
	return fn, ok
}

// NewAggregate creates a fresh accumulator for the named aggregate.
func (r *Registry) NewAggregate(name string) (AggregateFunction, bool) {
	factory, ok := r.aggregates[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// IsAggregate reports whether name is a registered aggregate.
func (r *Registry) IsAggregate(name string) bool {
	_, ok := r.aggregates[strings.ToLower(name)]
	return ok
}

// Names returns the names of every registered function, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.functions)+len(r.aggregates))
	for name := range r.functions {
		names = append(names, name)
	}
	for name := range r.aggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the built-in functions.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Register scalar functions
	RegisterScalarFunctions(r)

	// Register aggregate functions
	RegisterAggregateFunctions(r)

	// Register math functions
	RegisterMathFunctions(r)

	return r
}

// CompareValues orders two values the way SQL does: NULL, then numbers,
// then text, then blobs.
func CompareValues(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		if a.Type() == TypeInteger && b.Type() == TypeInteger {
			return cmp(a.AsInt64(), b.AsInt64())
		}
		return cmp(a.AsFloat64(), b.AsFloat64())
	case 2:
		return strings.Compare(a.AsString(), b.AsString())
	}
	return strings.Compare(string(a.AsBlob()), string(b.AsBlob()))
}

func typeRank(v Value) int {
	switch v.Type() {
	case TypeNull:
		return 0
	case TypeInteger, TypeFloat:
		return 1
	case TypeText:
		return 2
	}
	return 3
}

func cmp[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
