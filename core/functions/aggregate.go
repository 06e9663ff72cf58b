package functions

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// RegisterAggregateFunctions registers all aggregate functions.
func RegisterAggregateFunctions(r *Registry) {
	r.RegisterAggregate("count", func() AggregateFunction { return &CountFunc{} })
	r.RegisterAggregate("count(*)", func() AggregateFunction { return &CountFunc{star: true} })
	r.RegisterAggregate("sum", func() AggregateFunction { return &SumFunc{} })
	r.RegisterAggregate("total", func() AggregateFunction { return &SumFunc{total: true} })
	r.RegisterAggregate("avg", func() AggregateFunction { return &SumFunc{avg: true} })
	r.RegisterAggregate("min", func() AggregateFunction { return &MinMaxFunc{sign: -1} })
	r.RegisterAggregate("max", func() AggregateFunction { return &MinMaxFunc{sign: 1} })
	r.RegisterAggregate("group_concat", func() AggregateFunction { return &GroupConcatFunc{} })
}

// CountFunc implements count(X) and count(*)
type CountFunc struct {
	star  bool
	count int64
}

func (f *CountFunc) Step(args []Value) error {
	if f.star || (len(args) > 0 && !args[0].IsNull()) {
		f.count++
	}
	return nil
}

func (f *CountFunc) Final() (Value, error) {
	return NewIntValue(f.count), nil
}

// SumFunc implements sum(X), total(X) and avg(X). Integers are summed
// exactly until a real shows up.
type SumFunc struct {
	total    bool
	avg      bool
	count    int64
	intSum   int64
	floatSum float64
	approx   bool
	overflow bool
}

func (f *SumFunc) Step(args []Value) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	f.count++
	if NumericType(args[0]) == TypeInteger {
		v := args[0].AsInt64()
		f.floatSum += float64(v)
		if !f.approx && !f.overflow {
			s := f.intSum + v
			if (v > 0 && s < f.intSum) || (v < 0 && s > f.intSum) {
				f.overflow = true
			} else {
				f.intSum = s
			}
		}
		return nil
	}
	f.floatSum += args[0].AsFloat64()
	f.approx = true
	return nil
}

func (f *SumFunc) Final() (Value, error) {
	switch {
	case f.avg:
		if f.count == 0 {
			return NewNullValue(), nil
		}
		return NewFloatValue(f.floatSum / float64(f.count)), nil
	case f.total:
		return NewFloatValue(f.floatSum), nil
	case f.count == 0:
		return NewNullValue(), nil
	case f.approx:
		return NewFloatValue(f.floatSum), nil
	case f.overflow:
		return nil, fmt.Errorf("integer overflow")
	}
	return NewIntValue(f.intSum), nil
}

// MinMaxFunc implements min(X) and max(X). NULLs are ignored.
type MinMaxFunc struct {
	sign int
	best Value
}

func (f *MinMaxFunc) Step(args []Value) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	if f.best == nil || CompareValues(args[0], f.best)*f.sign > 0 {
		f.best = args[0]
	}
	return nil
}

func (f *MinMaxFunc) Final() (Value, error) {
	if f.best == nil {
		return NewNullValue(), nil
	}
	return f.best, nil
}

// GroupConcatFunc implements group_concat(X [, SEP])
type GroupConcatFunc struct {
	b    strings.Builder
	seen bool
}

func (f *GroupConcatFunc) Step(args []Value) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	if f.seen {
		sep := ","
		if len(args) > 1 && !args[1].IsNull() {
			sep = args[1].AsString()
		}
		f.b.WriteString(sep)
	}
	f.seen = true
	f.b.WriteString(args[0].AsString())
	return nil
}

func (f *GroupConcatFunc) Final() (Value, error) {
	if !f.seen {
		return NewNullValue(), nil
	}
	return NewTextValue(f.b.String()), nil
}

// NumericType reports whether a value behaves as an integer or a real in
// arithmetic. Text and blobs are integers only when they spell one exactly.
func NumericType(v Value) ValueType {
	switch v.Type() {
	case TypeInteger, TypeFloat, TypeNull:
		return v.Type()
	}
	if _, ok := utf.ParseInt(v.AsBlob()); ok {
		return TypeInteger
	}
	return TypeFloat
}

