package vdbe

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/functions"
	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// FuncDef names the function an OpFunction, OpAggStep or OpAggFinal calls.
// NArg is the declared argument count, -1 for variadic functions.
type FuncDef struct {
	Name string
	NArg int
}

// aggContext is the state of one aggregate group, held in the accumulator
// register with MemAgg set. Exactly one of impl and native is set.
type aggContext struct {
	fn     *FuncDef
	impl   functions.AggregateFunction
	native nativeAgg
}

// nativeAgg is an aggregate that works on registers directly.
type nativeAgg interface {
	step(args []*Mem) error
	final(out *Mem) error
}

type nativeScalar struct {
	minArgs, maxArgs int // maxArgs < 0 means no limit
	fn               func(args []*Mem, out *Mem) error
}

var nativeScalars = map[string]nativeScalar{
	"abs":      {1, 1, nativeAbs},
	"length":   {1, 1, nativeLength},
	"typeof":   {1, 1, nativeTypeof},
	"coalesce": {2, -1, nativeCoalesce},
}

func (v *VDBE) newNativeAgg(name string) nativeAgg {
	switch name {
	case "count":
		return &countAgg{}
	case "count(*)":
		return &countAgg{star: true}
	case "sum":
		return &sumAgg{}
	case "total":
		return &sumAgg{total: true}
	case "avg":
		return &sumAgg{avg: true}
	case "min":
		return &minMaxAgg{sign: -1, coll: v.collSeq}
	case "max":
		return &minMaxAgg{sign: 1, coll: v.collSeq}
	}
	return nil
}

func (in *Instruction) funcDef() (*FuncDef, error) {
	if in.P4Type != P4FuncDef || in.P4.Func == nil {
		return nil, errors.NewVM(errors.Misuse, "%s without a function in P4", in.Opcode)
	}
	return in.P4.Func, nil
}

// funcArgs returns the argument registers of a function call: P5 registers
// starting at P2, or the declared count when P5 is zero.
func (v *VDBE) funcArgs(instr *Instruction, fd *FuncDef) ([]*Mem, error) {
	n := int(instr.P5)
	if n == 0 && fd.NArg > 0 {
		n = fd.NArg
	}
	return v.memRange(instr.P2, n)
}

// execFunction calls the scalar function P4 on the arguments at P2 and
// stores the result in P3.
func (v *VDBE) execFunction(instr *Instruction) error {
	fd, err := instr.funcDef()
	if err != nil {
		return err
	}
	args, err := v.funcArgs(instr, fd)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}

	name := strings.ToLower(fd.Name)
	if ns, ok := nativeScalars[name]; ok && v.config.NativeFunctions && ns.accepts(len(args)) {
		if err := ns.fn(args, out); err != nil {
			return &errors.VMError{Code: errors.Error, Err: err}
		}
		return v.checkResultSize(out)
	}

	fn, ok := v.Registry.Lookup(name)
	if !ok {
		return errors.NewVM(errors.Error, "no such function: %s", fd.Name)
	}
	vals := make([]functions.Value, len(args))
	for i, m := range args {
		vals[i] = memToValue(m)
	}
	v.pushCache()
	res, err := fn.Call(vals)
	v.popCache()
	if err != nil {
		return &errors.VMError{Code: errors.Error, Err: err}
	}
	valueToMem(res, out)
	return v.checkResultSize(out)
}

func (ns nativeScalar) accepts(n int) bool {
	return n >= ns.minArgs && (ns.maxArgs < 0 || n <= ns.maxArgs)
}

func (v *VDBE) checkResultSize(out *Mem) error {
	if out.TooBig(v.config.MaxRecordSize) {
		return errors.NewVM(errors.TooBig, "function result exceeds size limit")
	}
	return nil
}

// pushCache and popCache bracket code that reads registers behind the
// cache's back.
func (v *VDBE) pushCache() {
	if v.cache != nil {
		v.cache.Push()
	}
}

func (v *VDBE) popCache() {
	if v.cache != nil {
		v.cache.Pop()
	}
}

func (v *VDBE) newAggContext(fd *FuncDef) (*aggContext, error) {
	name := strings.ToLower(fd.Name)
	if v.config.NativeFunctions {
		if na := v.newNativeAgg(name); na != nil {
			return &aggContext{fn: fd, native: na}, nil
		}
	}
	impl, ok := v.Registry.NewAggregate(name)
	if !ok {
		return nil, errors.NewVM(errors.Error, "no such aggregate: %s", fd.Name)
	}
	return &aggContext{fn: fd, impl: impl}, nil
}

// execAggStep feeds the arguments at P2 to the aggregate P4 whose state
// lives in register P3.
func (v *VDBE) execAggStep(instr *Instruction) error {
	fd, err := instr.funcDef()
	if err != nil {
		return err
	}
	args, err := v.funcArgs(instr, fd)
	if err != nil {
		return err
	}
	acc, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}
	if acc.Flags()&MemAgg == 0 || acc.agg == nil || acc.agg.fn != fd {
		ctx, err := v.newAggContext(fd)
		if err != nil {
			return err
		}
		acc.release()
		acc.z = nil
		acc.agg = ctx
		acc.SetFlags(MemAgg)
	}

	if na := acc.agg.native; na != nil {
		if err := na.step(args); err != nil {
			return &errors.VMError{Code: errors.Error, Err: err}
		}
		return nil
	}
	vals := make([]functions.Value, len(args))
	for i, m := range args {
		vals[i] = memToValue(m)
	}
	v.pushCache()
	err = acc.agg.impl.Step(vals)
	v.popCache()
	if err != nil {
		return &errors.VMError{Code: errors.Error, Err: err}
	}
	return nil
}

// execAggFinal replaces the aggregate state in register P1 with the
// result. An accumulator that never saw a row is finalized empty.
func (v *VDBE) execAggFinal(instr *Instruction) error {
	fd, err := instr.funcDef()
	if err != nil {
		return err
	}
	acc, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	ctx := acc.agg
	if acc.Flags()&MemAgg == 0 || ctx == nil {
		if ctx, err = v.newAggContext(fd); err != nil {
			return err
		}
	}
	acc.agg = nil
	acc.SetFlags(MemNull)

	if ctx.native != nil {
		if err := ctx.native.final(acc); err != nil {
			return &errors.VMError{Code: errors.Error, Err: err}
		}
		return v.checkResultSize(acc)
	}
	v.pushCache()
	res, err := ctx.impl.Final()
	v.popCache()
	if err != nil {
		return &errors.VMError{Code: errors.Error, Err: err}
	}
	valueToMem(res, acc)
	return v.checkResultSize(acc)
}

// memToValue converts a register for the function registry without
// touching the register.
func memToValue(m *Mem) functions.Value {
	switch m.Type() {
	case TypeInteger:
		return functions.NewIntValue(m.intPayload())
	case TypeFloat:
		return functions.NewFloatValue(m.realPayload())
	case TypeText:
		return functions.NewTextValue(string(m.z))
	case TypeBlob:
		buf := make([]byte, len(m.z)+m.zeroTail(m.Flags()))
		copy(buf, m.z)
		return functions.NewBlobValue(buf)
	}
	return functions.NewNullValue()
}

func valueToMem(val functions.Value, out *Mem) {
	if val == nil {
		out.SetNull()
		return
	}
	switch val.Type() {
	case functions.TypeInteger:
		out.SetInt(val.AsInt64())
	case functions.TypeFloat:
		out.SetReal(val.AsFloat64())
	case functions.TypeText:
		out.SetStr(val.AsString())
	case functions.TypeBlob:
		out.SetBlob(val.AsBlob())
	default:
		out.SetNull()
	}
}

// memText renders a register as text without giving it a string form.
func memText(m *Mem) string {
	switch m.Type() {
	case TypeInteger:
		return strconv.FormatInt(m.intPayload(), 10)
	case TypeFloat:
		return utf.FormatReal(m.realPayload())
	case TypeNull:
		return ""
	}
	return string(m.z)
}

func nativeAbs(args []*Mem, out *Mem) error {
	in := args[0]
	switch in.Type() {
	case TypeNull:
		out.SetNull()
	case TypeInteger:
		i := in.intPayload()
		if i == math.MinInt64 {
			return errors.NewVM(errors.Error, "integer overflow")
		}
		if i < 0 {
			i = -i
		}
		out.SetInt(i)
	default:
		out.SetReal(math.Abs(in.RealValue()))
	}
	return nil
}

func nativeLength(args []*Mem, out *Mem) error {
	in := args[0]
	switch in.Type() {
	case TypeNull:
		out.SetNull()
	case TypeBlob:
		out.SetInt(int64(in.Len()))
	default:
		out.SetInt(int64(utf8.RuneCountInString(memText(in))))
	}
	return nil
}

func nativeTypeof(args []*Mem, out *Mem) error {
	out.SetStr(args[0].Type().String())
	return nil
}

func nativeCoalesce(args []*Mem, out *Mem) error {
	for _, arg := range args {
		if !arg.IsNull() {
			if arg != out {
				out.Copy(arg)
			}
			return nil
		}
	}
	out.SetNull()
	return nil
}

type countAgg struct {
	star bool
	n    int64
}

func (a *countAgg) step(args []*Mem) error {
	if a.star || (len(args) > 0 && !args[0].IsNull()) {
		a.n++
	}
	return nil
}

func (a *countAgg) final(out *Mem) error {
	out.SetInt(a.n)
	return nil
}

// sumAgg implements sum, total and avg. Integers are summed exactly until
// a real or a non-integer string shows up.
type sumAgg struct {
	total, avg bool

	n        int64
	intSum   int64
	floatSum float64
	approx   bool
	overflow bool
}

func (a *sumAgg) step(args []*Mem) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	in := args[0]
	a.n++
	isInt := in.Type() == TypeInteger
	var i int64
	if isInt {
		i = in.intPayload()
	} else if in.Type() != TypeFloat {
		i, isInt = utf.ParseInt(in.z)
	}
	if !isInt {
		a.floatSum += in.RealValue()
		a.approx = true
		return nil
	}
	a.floatSum += float64(i)
	if !a.approx && !a.overflow {
		s := a.intSum + i
		if (i > 0 && s < a.intSum) || (i < 0 && s > a.intSum) {
			a.overflow = true
		} else {
			a.intSum = s
		}
	}
	return nil
}

func (a *sumAgg) final(out *Mem) error {
	switch {
	case a.avg:
		if a.n == 0 {
			out.SetNull()
			return nil
		}
		out.SetReal(a.floatSum / float64(a.n))
	case a.total:
		out.SetReal(a.floatSum)
	case a.n == 0:
		out.SetNull()
	case a.approx:
		out.SetReal(a.floatSum)
	case a.overflow:
		return errors.NewVM(errors.Error, "integer overflow")
	default:
		out.SetInt(a.intSum)
	}
	return nil
}

// minMaxAgg keeps a private copy of the best value seen so far, compared
// with the collation in effect when the group started.
type minMaxAgg struct {
	sign int
	coll utf.Collation
	best *Mem
}

func (a *minMaxAgg) step(args []*Mem) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	if a.best == nil {
		a.best = NewMem()
	} else if args[0].Compare(a.best, a.coll)*a.sign <= 0 {
		return nil
	}
	a.best.Copy(args[0])
	return nil
}

func (a *minMaxAgg) final(out *Mem) error {
	if a.best == nil {
		out.SetNull()
		return nil
	}
	out.Copy(a.best)
	return nil
}
