// Package vdbe implements the register machine that runs compiled SQL
// programs: typed registers with a snapshot cache, the record format and
// one handler per opcode.
package vdbe

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/functions"
	"github.com/FocuswithJustin/vdbecore/core/utf"
	"github.com/FocuswithJustin/vdbecore/internal/logging"
)

// VdbeState represents the execution state of the VDBE.
type VdbeState uint8

const (
	StateInit     VdbeState = 0 // Prepared statement under construction
	StateReady    VdbeState = 1 // Ready to run but not yet started
	StateRun      VdbeState = 2 // Run in progress
	StateRowReady VdbeState = 3 // A result row is ready to be read
	StateHalt     VdbeState = 4 // Finished, need reset or finalize
)

// Status is the outcome of one call to Step.
type Status int

const (
	StatusError Status = iota // Execution failed, see the returned error
	StatusRow                 // A result row is ready
	StatusDone                // The program ran to completion
)

func (s Status) String() string {
	switch s {
	case StatusRow:
		return "ROW"
	case StatusDone:
		return "DONE"
	}
	return "ERROR"
}

// Config holds the settings of one VDBE.
type Config struct {
	FileFormat      int  // Record format version; integers 0 and 1 get serial types 8 and 9 above 4
	MaxRecordSize   int  // Largest string, blob or record in bytes
	UseCache        bool // Route register flags through the snapshot cache
	DebugCache      bool // Cross-check every cached read against the register
	InternLimit     int  // Cap on interned cache snapshots
	TraceLogging    bool // Log every instruction at debug level
	NativeFunctions bool // Run built-in functions without the registry
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FileFormat:      4,
		MaxRecordSize:   1000000000,
		UseCache:        true,
		InternLimit:     DefaultInternLimit,
		NativeFunctions: true,
	}
}

// Program is a compiled program with the resources it needs.
type Program struct {
	Ops        []*Instruction
	NumMem     int      // Registers, numbered from 0
	NumCursor  int      // Cursor slots
	NumOnce    int      // OP_Once flags
	NumVar     int      // Bound parameters, numbered from 1
	Columns    []string // Result column names
	FileFormat int      // Overrides Config.FileFormat when non-zero
}

// Counters are the statement statistics. OP_Next and OP_Prev add to the
// counter named by their P5 operand.
type Counters struct {
	FullscanStep int64
	Sort         int64
	AutoIndex    int64
	VMStep       int64
}

// Counter numbers carried in P5 of OP_Next and OP_Prev.
const (
	CounterFullscanStep = 1
	CounterSort         = 2
	CounterAutoIndex    = 3
	CounterVMStep       = 4
)

// TraceEvent describes one executed instruction.
type TraceEvent struct {
	StatementID string `json:"statement_id"`
	PC          int    `json:"pc"`
	Opcode      string `json:"opcode"`
	P1          int    `json:"p1"`
	P2          int    `json:"p2"`
	P3          int    `json:"p3"`
	P4          string `json:"p4,omitempty"`
	P5          uint16 `json:"p5"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Tracer receives an event for every executed instruction and one for the
// end of the statement.
type Tracer interface {
	Trace(ev TraceEvent)
}

// stepResult tells the step loop what to do after an instruction.
type stepResult int

const (
	stepContinue stepResult = iota
	stepRow
	stepHalt
)

// VDBE represents the Virtual Database Engine - a bytecode virtual machine.
type VDBE struct {
	// Program and execution state
	Program []*Instruction // The bytecode program
	PC      int            // Program counter
	State   VdbeState      // Execution state

	// Memory and registers
	Mem    []*Mem // Array of memory cells (registers)
	NumMem int    // Number of memory cells allocated
	Vars   []*Mem // Bound parameters, Vars[0] is parameter 1

	// Cursors
	Cursors   []*Cursor // Array of open cursors
	NumCursor int       // Number of cursors allocated

	// Result handling
	ResultCols []string // Names of result columns
	ResultRow  []*Mem   // Current result row

	// Error handling
	ErrorMsg string // Error message (if any)

	CacheCtr uint32 // Cursor cache generation counter
	NumSteps int64  // Number of VM steps executed

	// Change tracking
	NumChanges      int64 // Rows changed by OP_Insert and OP_Delete
	LastInsertRowid int64 // Rowid of the last OP_Insert with OpflagLastRowid

	StatementID string       // Identifies the statement in logs and traces
	Storage     Storage      // Trees behind OpenRead, OpenWrite and OpenEphemeral
	Registry    *functions.Registry
	Tracer      Tracer

	config    Config
	cache     *CacheHolder
	onceFlags []bool
	iCompare  int
	collSeq   utf.Collation
	counters  Counters
	err       error
	started   time.Time

	interrupted atomic.Bool
}

// New creates a new VDBE instance with the default configuration.
func New() *VDBE {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new VDBE instance.
func NewWithConfig(cfg Config) *VDBE {
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = DefaultConfig().MaxRecordSize
	}
	return &VDBE{
		Program:     make([]*Instruction, 0, 16),
		Mem:         make([]*Mem, 0, 16),
		Cursors:     make([]*Cursor, 0, 4),
		State:       StateInit,
		CacheCtr:    1,
		StatementID: uuid.NewString(),
		Registry:    functions.DefaultRegistry(),
		config:      cfg,
		collSeq:     utf.Binary,
	}
}

// Config returns the configuration the VDBE was created with.
func (v *VDBE) Config() Config {
	return v.config
}

// Load installs a compiled program and allocates its registers, cursors,
// once flags and parameters.
func (v *VDBE) Load(p *Program) error {
	if v.State != StateInit && v.State != StateReady {
		return errors.NewVM(errors.Misuse, "cannot load a program into a running statement")
	}
	v.Program = p.Ops
	v.ResultCols = p.Columns
	if p.FileFormat != 0 {
		v.config.FileFormat = p.FileFormat
	}
	if err := v.AllocMemory(p.NumMem); err != nil {
		return err
	}
	if err := v.AllocCursors(p.NumCursor); err != nil {
		return err
	}
	v.onceFlags = make([]bool, p.NumOnce)
	v.Vars = make([]*Mem, p.NumVar)
	for i := range v.Vars {
		v.Vars[i] = NewMemNull()
	}
	v.State = StateReady
	return nil
}

// AddOp adds an instruction to the program.
func (v *VDBE) AddOp(opcode Opcode, p1, p2, p3 int) int {
	addr := len(v.Program)
	v.Program = append(v.Program, &Instruction{
		Opcode: opcode,
		P1:     p1,
		P2:     p2,
		P3:     p3,
		P4Type: P4NotUsed,
	})
	return addr
}

// AddOpWithP4Int adds an instruction with a P4 integer operand.
func (v *VDBE) AddOpWithP4Int(opcode Opcode, p1, p2, p3 int, p4 int32) int {
	addr := v.AddOp(opcode, p1, p2, p3)
	v.Program[addr].P4.I = p4
	v.Program[addr].P4Type = P4Int32
	return addr
}

// AddOpWithP4Str adds an instruction with a P4 string operand.
func (v *VDBE) AddOpWithP4Str(opcode Opcode, p1, p2, p3 int, p4 string) int {
	addr := v.AddOp(opcode, p1, p2, p3)
	v.Program[addr].P4.Z = p4
	v.Program[addr].P4Type = P4Static
	return addr
}

// AddOpWithP4Real adds an instruction with a P4 real (float64) operand.
func (v *VDBE) AddOpWithP4Real(opcode Opcode, p1, p2, p3 int, p4 float64) int {
	addr := v.AddOp(opcode, p1, p2, p3)
	v.Program[addr].P4.R = p4
	v.Program[addr].P4Type = P4Real
	return addr
}

// AddOpWithP4Func adds a function call instruction.
func (v *VDBE) AddOpWithP4Func(opcode Opcode, p1, p2, p3 int, fd *FuncDef) int {
	addr := v.AddOp(opcode, p1, p2, p3)
	v.Program[addr].P4.Func = fd
	v.Program[addr].P4Type = P4FuncDef
	return addr
}

// SetComment sets a comment on an instruction for debugging.
func (v *VDBE) SetComment(addr int, comment string) {
	if addr >= 0 && addr < len(v.Program) {
		v.Program[addr].Comment = comment
	}
}

// AllocMemory allocates the specified number of memory cells and binds
// them to a fresh cache holder.
func (v *VDBE) AllocMemory(n int) error {
	if n < 0 {
		return errors.NewVM(errors.Misuse, "negative register count %d", n)
	}
	for i := len(v.Mem); i < n; i++ {
		v.Mem = append(v.Mem, NewMem())
	}
	v.NumMem = len(v.Mem)
	v.cache = newCacheHolder(len(v.Mem), v.config.UseCache, v.config.DebugCache, v.config.InternLimit)
	v.cache.Attach(v.Mem)
	return nil
}

// GetMem returns a memory cell by index.
func (v *VDBE) GetMem(index int) (*Mem, error) {
	if index < 0 || index >= len(v.Mem) {
		return nil, errors.NewVM(errors.Misuse, "register index %d out of range [0, %d)", index, len(v.Mem))
	}
	return v.Mem[index], nil
}

// CacheHolder returns the register cache.
func (v *VDBE) CacheHolder() *CacheHolder {
	return v.cache
}

// AllocCursors allocates the specified number of cursors.
func (v *VDBE) AllocCursors(n int) error {
	for i := len(v.Cursors); i < n; i++ {
		v.Cursors = append(v.Cursors, nil)
	}
	v.NumCursor = len(v.Cursors)
	return nil
}

// GetCursor returns a cursor by index.
func (v *VDBE) GetCursor(index int) (*Cursor, error) {
	if index < 0 || index >= len(v.Cursors) {
		return nil, errors.NewVM(errors.Misuse, "cursor index %d out of range [0, %d)", index, len(v.Cursors))
	}
	if v.Cursors[index] == nil {
		return nil, errors.NewVM(errors.Misuse, "cursor %d is not open", index)
	}
	return v.Cursors[index], nil
}

// CloseCursor closes a cursor at the specified index.
func (v *VDBE) CloseCursor(index int) error {
	if index < 0 || index >= len(v.Cursors) {
		return errors.NewVM(errors.Misuse, "cursor index %d out of range", index)
	}
	c := v.Cursors[index]
	v.Cursors[index] = nil
	if c == nil {
		return nil
	}
	return c.close()
}

func (v *VDBE) closeAllCursors() error {
	var first error
	for i := range v.Cursors {
		if err := v.CloseCursor(i); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Interrupt asks a running statement to stop. It is safe to call from any
// goroutine; the statement fails with ErrInterrupt at its next loop
// back-edge.
func (v *VDBE) Interrupt() {
	v.interrupted.Store(true)
}

// checkInterrupt is polled on Goto and on Next and Prev.
func (v *VDBE) checkInterrupt(ctx context.Context) error {
	if v.interrupted.Load() {
		return errors.NewVM(errors.Interrupt, "interrupted")
	}
	if err := ctx.Err(); err != nil {
		return &errors.VMError{Code: errors.Interrupt, Err: err}
	}
	return nil
}

// Step runs the program until it produces a row, finishes or fails.
func (v *VDBE) Step(ctx context.Context) (Status, error) {
	if v.State == StateInit {
		if len(v.Program) == 0 {
			return StatusError, errors.NewVM(errors.Misuse, "no program loaded")
		}
		v.State = StateReady
	}

	switch v.State {
	case StateHalt:
		if v.err != nil {
			return StatusError, v.err
		}
		return StatusDone, nil
	case StateReady:
		v.PC = 0
		v.State = StateRun
		v.started = time.Now()
		logging.StatementStart(ctx, v.StatementID, len(v.Program), len(v.Mem))
	case StateRowReady:
		v.ResultRow = nil
		v.State = StateRun
	}

	if v.cache != nil {
		v.cache.Reenter()
		defer v.cache.PrepareReturn()
	}

	for {
		if v.PC < 0 || v.PC >= len(v.Program) {
			v.halt(ctx, nil)
			return StatusDone, nil
		}
		pc := v.PC
		instr := v.Program[pc]
		v.PC++
		v.NumSteps++
		v.counters.VMStep++

		if v.config.TraceLogging {
			logging.InstructionTrace(ctx, v.StatementID, pc, instr.Opcode.String(), instr.P1, instr.P2, instr.P3)
		}

		res, err := v.execInstruction(ctx, instr)
		if err != nil {
			return StatusError, v.fail(ctx, instr, pc, err)
		}
		v.trace(pc, instr, "", nil)

		switch res {
		case stepRow:
			v.State = StateRowReady
			return StatusRow, nil
		case stepHalt:
			v.halt(ctx, nil)
			return StatusDone, nil
		}
	}
}

// Run steps the program to completion, discarding rows.
func (v *VDBE) Run(ctx context.Context) error {
	for {
		st, err := v.Step(ctx)
		if err != nil {
			return err
		}
		if st == StatusDone {
			return nil
		}
	}
}

// fail wraps err with the failing instruction and halts the statement.
func (v *VDBE) fail(ctx context.Context, instr *Instruction, pc int, err error) error {
	var vm *errors.VMError
	if errors.As(err, &vm) && vm.Op == "" {
		vm.Op = instr.Opcode.String()
		vm.PC = pc
	} else if vm == nil {
		vm = &errors.VMError{Code: errors.CodeOf(err), Op: instr.Opcode.String(), PC: pc, Err: err}
	}
	v.trace(pc, instr, StatusError.String(), vm)
	v.halt(ctx, vm)
	return vm
}

func (v *VDBE) halt(ctx context.Context, err error) {
	if cerr := v.closeAllCursors(); cerr != nil && err == nil {
		err = cerr
	}
	v.State = StateHalt
	v.err = err
	if err != nil {
		v.ErrorMsg = err.Error()
	}
	logging.StatementHalt(ctx, v.StatementID, v.NumSteps, err, "elapsed", time.Since(v.started))
}

func (v *VDBE) trace(pc int, instr *Instruction, status string, err error) {
	if v.Tracer == nil {
		return
	}
	ev := TraceEvent{
		StatementID: v.StatementID,
		PC:          pc,
		Opcode:      instr.Opcode.String(),
		P1:          instr.P1,
		P2:          instr.P2,
		P3:          instr.P3,
		P4:          instr.P4String(),
		P5:          instr.P5,
		Status:      status,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	v.Tracer.Trace(ev)
}

// Reset rewinds the statement so it can run again. Bound parameters are
// kept.
func (v *VDBE) Reset() error {
	err := v.closeAllCursors()
	for _, mem := range v.Mem {
		mem.Release()
	}
	if v.cache != nil {
		v.cache.InvalidateAllOutside()
	}
	for i := range v.onceFlags {
		v.onceFlags[i] = false
	}
	v.PC = 0
	v.State = StateReady
	v.ResultRow = nil
	v.ErrorMsg = ""
	v.err = nil
	v.NumSteps = 0
	v.NumChanges = 0
	v.iCompare = 0
	v.collSeq = utf.Binary
	v.counters = Counters{}
	v.interrupted.Store(false)
	return err
}

// Finalize finalizes the VDBE and releases all resources.
func (v *VDBE) Finalize() error {
	err := v.closeAllCursors()
	for _, mem := range v.Mem {
		if mem != nil {
			mem.Release()
		}
	}
	v.Mem = nil
	v.Cursors = nil
	v.Vars = nil
	v.Program = nil
	v.State = StateHalt
	return err
}

// Err returns the error that halted the statement, if any.
func (v *VDBE) Err() error {
	return v.err
}

// Counters returns the statement statistics.
func (v *VDBE) Counters() Counters {
	return v.counters
}

func (v *VDBE) addCounter(n uint16) {
	switch n {
	case CounterFullscanStep:
		v.counters.FullscanStep++
	case CounterSort:
		v.counters.Sort++
	case CounterAutoIndex:
		v.counters.AutoIndex++
	case CounterVMStep:
		v.counters.VMStep++
	}
}

// bindVar returns parameter i if parameters may be bound now.
func (v *VDBE) bindVar(i int) (*Mem, error) {
	if v.State != StateInit && v.State != StateReady {
		return nil, errors.NewVM(errors.Misuse, "bind on a running statement")
	}
	if i < 1 || i > len(v.Vars) {
		return nil, errors.NewVM(errors.Misuse, "parameter index %d out of range [1, %d]", i, len(v.Vars))
	}
	return v.Vars[i-1], nil
}

// BindInt binds an integer to parameter i (1-based).
func (v *VDBE) BindInt(i int, val int64) error {
	m, err := v.bindVar(i)
	if err != nil {
		return err
	}
	m.SetInt(val)
	return nil
}

// BindReal binds a real to parameter i.
func (v *VDBE) BindReal(i int, val float64) error {
	m, err := v.bindVar(i)
	if err != nil {
		return err
	}
	m.SetReal(val)
	return nil
}

// BindText binds text to parameter i.
func (v *VDBE) BindText(i int, val string) error {
	m, err := v.bindVar(i)
	if err != nil {
		return err
	}
	m.SetStr(val)
	return nil
}

// BindBlob binds a copy of val to parameter i.
func (v *VDBE) BindBlob(i int, val []byte) error {
	m, err := v.bindVar(i)
	if err != nil {
		return err
	}
	m.SetBlob(val)
	return nil
}

// BindNull binds NULL to parameter i.
func (v *VDBE) BindNull(i int) error {
	m, err := v.bindVar(i)
	if err != nil {
		return err
	}
	m.SetNull()
	return nil
}

// ColumnCount returns the number of columns in the current row.
func (v *VDBE) ColumnCount() int {
	return len(v.ResultRow)
}

// ColumnName returns the name of result column i, if the program has one.
func (v *VDBE) ColumnName(i int) string {
	if i < 0 || i >= len(v.ResultCols) {
		return ""
	}
	return v.ResultCols[i]
}

func (v *VDBE) column(i int) *Mem {
	if v.State != StateRowReady || i < 0 || i >= len(v.ResultRow) {
		return nil
	}
	return v.ResultRow[i]
}

// ColumnType returns the storage class of column i of the current row.
func (v *VDBE) ColumnType(i int) ColumnType {
	if m := v.column(i); m != nil {
		return m.Type()
	}
	return TypeNull
}

// ColumnInt returns column i as an integer.
func (v *VDBE) ColumnInt(i int) int64 {
	if m := v.column(i); m != nil {
		return m.IntValue()
	}
	return 0
}

// ColumnReal returns column i as a real.
func (v *VDBE) ColumnReal(i int) float64 {
	if m := v.column(i); m != nil {
		return m.RealValue()
	}
	return 0
}

// ColumnText returns column i as text.
func (v *VDBE) ColumnText(i int) string {
	if m := v.column(i); m != nil {
		return m.TextValue()
	}
	return ""
}

// ColumnBlob returns a copy of column i as bytes.
func (v *VDBE) ColumnBlob(i int) []byte {
	if m := v.column(i); m != nil {
		return append([]byte(nil), m.BlobValue()...)
	}
	return nil
}

// ColumnValue returns column i as a Go value.
func (v *VDBE) ColumnValue(i int) interface{} {
	if m := v.column(i); m != nil {
		return m.Value()
	}
	return nil
}

// Row returns every column of the current row as Go values.
func (v *VDBE) Row() []interface{} {
	row := make([]interface{}, len(v.ResultRow))
	for i := range row {
		row[i] = v.ColumnValue(i)
	}
	return row
}

// ExplainProgram returns a string representation of the program for debugging.
func (v *VDBE) ExplainProgram() string {
	if len(v.Program) == 0 {
		return "Empty program"
	}

	var b strings.Builder
	b.WriteString("addr  opcode         p1    p2    p3    p4             p5  comment\n")
	b.WriteString("----  -------------  ----  ----  ----  -------------  --  -------\n")
	for i, instr := range v.Program {
		fmt.Fprintf(&b, "%-4d  %-13s  %-4d  %-4d  %-4d  %-13s  %-2d  %s\n",
			i, instr.Opcode.String(), instr.P1, instr.P2, instr.P3, instr.P4String(), instr.P5, instr.Comment)
	}
	return b.String()
}

// NumOps returns the number of instructions in the program.
func (v *VDBE) NumOps() int {
	return len(v.Program)
}

// IncrCacheCtr invalidates the parsed rows of every cursor.
func (v *VDBE) IncrCacheCtr() {
	v.CacheCtr = (v.CacheCtr + 2) | 1
}
