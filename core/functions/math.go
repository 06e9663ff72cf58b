package functions

import (
	"fmt"
	"math"
)

// RegisterMathFunctions registers all math functions.
func RegisterMathFunctions(r *Registry) {
	r.Register(NewScalarFunc("abs", 1, absFunc))
	r.Register(NewScalarFunc("round", -1, roundFunc)) // 1 or 2 args
	r.Register(NewScalarFunc("ceil", 1, unaryMath(math.Ceil)))
	r.Register(NewScalarFunc("ceiling", 1, unaryMath(math.Ceil)))
	r.Register(NewScalarFunc("floor", 1, unaryMath(math.Floor)))
	r.Register(NewScalarFunc("sqrt", 1, domainMath(math.Sqrt, func(x float64) bool { return x >= 0 })))
	r.Register(NewScalarFunc("exp", 1, unaryMath(math.Exp)))
	r.Register(NewScalarFunc("ln", 1, domainMath(math.Log, positive)))
	r.Register(NewScalarFunc("log10", 1, domainMath(math.Log10, positive)))
	r.Register(NewScalarFunc("log2", 1, domainMath(math.Log2, positive)))
	r.Register(NewScalarFunc("power", 2, powerFunc))
	r.Register(NewScalarFunc("pow", 2, powerFunc))
	r.Register(NewScalarFunc("sign", 1, signFunc))
	r.Register(NewScalarFunc("mod", 2, modFunc))
	r.Register(NewScalarFunc("pi", 0, piFunc))
}

func positive(x float64) bool { return x > 0 }

// absFunc implements abs(X). abs of the smallest integer overflows.
func absFunc(args []Value) (Value, error) {
	switch args[0].Type() {
	case TypeNull:
		return NewNullValue(), nil
	case TypeInteger:
		val := args[0].AsInt64()
		if val < 0 {
			if val == math.MinInt64 {
				return nil, fmt.Errorf("integer overflow")
			}
			return NewIntValue(-val), nil
		}
		return NewIntValue(val), nil
	default:
		return NewFloatValue(math.Abs(args[0].AsFloat64())), nil
	}
}

// roundFunc implements round(X [, Y]). The result is always a real.
func roundFunc(args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("round() requires 1 or 2 arguments")
	}
	if args[0].IsNull() {
		return NewNullValue(), nil
	}
	precision := int64(0)
	if len(args) == 2 {
		if args[1].IsNull() {
			return NewNullValue(), nil
		}
		precision = args[1].AsInt64()
		if precision > 30 {
			precision = 30
		}
		if precision < 0 {
			precision = 0
		}
	}
	value := args[0].AsFloat64()
	// Values this large have no fractional part.
	if math.Abs(value) >= 4503599627370496.0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return NewFloatValue(value), nil
	}
	if precision == 0 {
		return NewFloatValue(math.Round(value)), nil
	}
	multiplier := math.Pow(10, float64(precision))
	return NewFloatValue(math.Round(value*multiplier) / multiplier), nil
}

func unaryMath(fn func(float64) float64) func([]Value) (Value, error) {
	return func(args []Value) (Value, error) {
		if args[0].IsNull() {
			return NewNullValue(), nil
		}
		return NewFloatValue(fn(args[0].AsFloat64())), nil
	}
}

// domainMath wraps fn so that arguments outside its domain give NULL.
func domainMath(fn func(float64) float64, ok func(float64) bool) func([]Value) (Value, error) {
	return func(args []Value) (Value, error) {
		if args[0].IsNull() {
			return NewNullValue(), nil
		}
		x := args[0].AsFloat64()
		if !ok(x) {
			return NewNullValue(), nil
		}
		return NewFloatValue(fn(x)), nil
	}
}

// powerFunc implements power(X, Y)
func powerFunc(args []Value) (Value, error) {
	if args[0].IsNull() || args[1].IsNull() {
		return NewNullValue(), nil
	}
	r := math.Pow(args[0].AsFloat64(), args[1].AsFloat64())
	if math.IsNaN(r) {
		return NewNullValue(), nil
	}
	return NewFloatValue(r), nil
}

// signFunc implements sign(X): -1, 0 or +1.
func signFunc(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NewNullValue(), nil
	}
	f := args[0].AsFloat64()
	switch {
	case f > 0:
		return NewIntValue(1), nil
	case f < 0:
		return NewIntValue(-1), nil
	}
	return NewIntValue(0), nil
}

// modFunc implements mod(X, Y) as a real remainder. A zero divisor gives
// NULL.
func modFunc(args []Value) (Value, error) {
	if args[0].IsNull() || args[1].IsNull() {
		return NewNullValue(), nil
	}
	y := args[1].AsFloat64()
	if y == 0 {
		return NewNullValue(), nil
	}
	return NewFloatValue(math.Mod(args[0].AsFloat64(), y)), nil
}

// piFunc implements pi()
func piFunc(args []Value) (Value, error) {
	return NewFloatValue(math.Pi), nil
}
