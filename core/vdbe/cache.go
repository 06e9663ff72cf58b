package vdbe

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/blake3"
)

// Knowledge bits recorded per slot in a CacheState.
const (
	StatusUnknown    uint8 = 0
	StatusFlagKnown  uint8 = 1
	StatusIntKnown   uint8 = 2
	StatusFloatKnown uint8 = 4
	StatusConstant   uint8 = 8
)

// DefaultInternLimit caps the number of distinct snapshots one holder
// interns. Past the cap constant payloads are no longer recorded.
const DefaultInternLimit = 1 << 16

// CacheState is an immutable snapshot of what is known about every
// register: its flags and, for constants, its numeric payload. States are
// interned per holder, so two states with the same content are the same
// pointer.
type CacheState struct {
	flags  []MemFlags
	status []uint8
	ints   []int64
	reals  []float64
	digest [32]byte
}

func newCacheState(n int) *CacheState {
	return &CacheState{
		flags:  make([]MemFlags, n),
		status: make([]uint8, n),
		ints:   make([]int64, n),
		reals:  make([]float64, n),
	}
}

func (s *CacheState) clone() *CacheState {
	c := &CacheState{
		flags:  make([]MemFlags, len(s.flags)),
		status: make([]uint8, len(s.status)),
		ints:   make([]int64, len(s.ints)),
		reals:  make([]float64, len(s.reals)),
	}
	copy(c.flags, s.flags)
	copy(c.status, s.status)
	copy(c.ints, s.ints)
	copy(c.reals, s.reals)
	return c
}

// Size returns the number of slots the state describes.
func (s *CacheState) Size() int {
	return len(s.flags)
}

// FlagKnown reports whether the flags of slot i are known.
func (s *CacheState) FlagKnown(i int) bool {
	return s.status[i]&StatusFlagKnown != 0
}

// IntConstant returns the constant integer payload of slot i, if known.
func (s *CacheState) IntConstant(i int) (int64, bool) {
	if s.status[i]&(StatusIntKnown|StatusConstant) == StatusIntKnown|StatusConstant {
		return s.ints[i], true
	}
	return 0, false
}

// RealConstant returns the constant real payload of slot i, if known.
func (s *CacheState) RealConstant(i int) (float64, bool) {
	if s.status[i]&(StatusFloatKnown|StatusConstant) == StatusFloatKnown|StatusConstant {
		return s.reals[i], true
	}
	return 0, false
}

// Status returns the knowledge bits of slot i.
func (s *CacheState) Status(i int) uint8 {
	return s.status[i]
}

// Flag returns the cached flags of slot i. Only meaningful when FlagKnown.
func (s *CacheState) Flag(i int) MemFlags {
	return s.flags[i]
}

func (s *CacheState) String() string {
	return fmt.Sprintf("CacheState(%v, %v, %v, %v)", s.flags, s.status, s.ints, s.reals)
}

func (s *CacheState) sum() [32]byte {
	n := len(s.flags)
	buf := make([]byte, 0, n*19)
	for i := 0; i < n; i++ {
		buf = binary.BigEndian.AppendUint16(buf, uint16(s.flags[i]))
		buf = append(buf, s.status[i])
		buf = binary.BigEndian.AppendUint64(buf, uint64(s.ints[i]))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(s.reals[i]))
	}
	return blake3.Sum256(buf)
}

func (s *CacheState) equal(o *CacheState) bool {
	if len(s.flags) != len(o.flags) {
		return false
	}
	for i := range s.flags {
		if s.flags[i] != o.flags[i] || s.status[i] != o.status[i] || s.ints[i] != o.ints[i] ||
			math.Float64bits(s.reals[i]) != math.Float64bits(o.reals[i]) {
			return false
		}
	}
	return true
}

// stateTable interns CacheStates by content digest.
type stateTable struct {
	states map[[32]byte][]*CacheState
	count  int
	limit  int
}

func newStateTable(limit int) *stateTable {
	if limit <= 0 {
		limit = DefaultInternLimit
	}
	return &stateTable{states: make(map[[32]byte][]*CacheState), limit: limit}
}

func (t *stateTable) full() bool {
	return t.count >= t.limit
}

// unique returns the interned state equal to s, interning s if it is new.
// Once the table is full new states are returned as they are.
func (t *stateTable) unique(s *CacheState) *CacheState {
	s.digest = s.sum()
	for _, c := range t.states[s.digest] {
		if c.equal(s) {
			return c
		}
	}
	if t.full() {
		return s
	}
	t.states[s.digest] = append(t.states[s.digest], s)
	t.count++
	return s
}

func (t *stateTable) changeFlags(s *CacheState, i int, f MemFlags) *CacheState {
	if s.FlagKnown(i) && s.flags[i] == f {
		return s
	}
	s = t.addKnowledge(s, i, StatusFlagKnown)
	c := s.clone()
	c.flags[i] = f
	return t.unique(c)
}

func (t *stateTable) addKnowledge(s *CacheState, i int, bits uint8) *CacheState {
	return t.changeStatus(s, i, s.status[i]|bits)
}

func (t *stateTable) changeStatus(s *CacheState, i int, status uint8) *CacheState {
	if s.status[i] == status {
		return s
	}
	c := s.clone()
	c.status[i] = status
	return t.unique(c)
}

func (t *stateTable) setIntConstant(s *CacheState, i int, v int64) *CacheState {
	s = t.addKnowledge(s, i, StatusIntKnown|StatusConstant)
	if s.ints[i] == v {
		return s
	}
	c := s.clone()
	c.ints[i] = v
	return t.unique(c)
}

func (t *stateTable) setRealConstant(s *CacheState, i int, v float64) *CacheState {
	s = t.addKnowledge(s, i, StatusFloatKnown|StatusConstant)
	if math.Float64bits(s.reals[i]) == math.Float64bits(v) {
		return s
	}
	c := s.clone()
	c.reals[i] = v
	return t.unique(c)
}

func (t *stateTable) setUnknown(s *CacheState, i int) *CacheState {
	if s.status[i] == StatusUnknown {
		return s
	}
	return t.changeStatus(t.changeFlags(s, i, 0), i, StatusUnknown)
}

// CacheMismatchError is raised in debug mode when the cache disagrees with
// the register it describes.
type CacheMismatchError struct {
	Slot   int
	What   string
	Cached interface{}
	Actual interface{}
}

func (e *CacheMismatchError) Error() string {
	return fmt.Sprintf("cache mismatch on register %d %s: cached %v, actual %v", e.Slot, e.What, e.Cached, e.Actual)
}

// CacheHolder tracks the current CacheState of one register file. While a
// step is running the state lives in the virtual slot; between steps it is
// parked in the non-virtual slot.
type CacheHolder struct {
	invalid  *CacheState
	nonvirt  *CacheState
	virt     *CacheState
	virtual  bool
	useCache bool
	debug    bool
	table    *stateTable
	saved    []*CacheState
}

// NewCacheHolder creates a holder for n registers. With useCache false the
// holder never records anything and every access reads the registers.
func NewCacheHolder(n int, useCache, debug bool) *CacheHolder {
	return newCacheHolder(n, useCache, debug, DefaultInternLimit)
}

func newCacheHolder(n int, useCache, debug bool, limit int) *CacheHolder {
	t := newStateTable(limit)
	invalid := t.unique(newCacheState(n))
	return &CacheHolder{
		invalid:  invalid,
		nonvirt:  invalid,
		useCache: useCache,
		debug:    debug,
		table:    t,
	}
}

// Attach binds registers to the holder, register i to slot i.
func (h *CacheHolder) Attach(mems []*Mem) {
	for i, m := range mems {
		if i >= h.invalid.Size() {
			return
		}
		m.slot = i
		m.cache = h
	}
}

// State returns the current snapshot.
func (h *CacheHolder) State() *CacheState {
	if h.virtual {
		return h.virt
	}
	return h.nonvirt
}

func (h *CacheHolder) setState(s *CacheState) {
	if !h.useCache {
		s = h.invalid
	}
	if h.virtual {
		h.virt = s
	} else {
		h.nonvirt = s
	}
}

// Interned returns how many distinct snapshots have been interned.
func (h *CacheHolder) Interned() int {
	return h.table.count
}

// PrepareReturn parks the running state before control goes back to the
// caller of Step.
func (h *CacheHolder) PrepareReturn() {
	h.nonvirt = h.State()
	h.virt = nil
	h.virtual = false
}

// Reenter resumes the parked state at the start of a step.
func (h *CacheHolder) Reenter() *CacheState {
	s := h.nonvirt
	h.virt = s
	h.virtual = true
	return s
}

// Hide returns the running state and continues with nothing known, for
// code that runs outside the interpreter's view.
func (h *CacheHolder) Hide() *CacheState {
	s := h.State()
	h.virtual = false
	h.nonvirt = h.invalid
	h.virt = nil
	return s
}

// Reveal resumes a state returned by Hide.
func (h *CacheHolder) Reveal(s *CacheState) {
	h.virt = s
	h.virtual = true
}

// Push hides the running state and remembers it for Pop.
func (h *CacheHolder) Push() {
	h.saved = append(h.saved, h.Hide())
}

// Pop reveals the state saved by the matching Push.
func (h *CacheHolder) Pop() {
	n := len(h.saved)
	if n == 0 {
		return
	}
	s := h.saved[n-1]
	h.saved = h.saved[:n-1]
	h.Reveal(s)
}

// Invalidate forgets everything about slot i.
func (h *CacheHolder) Invalidate(i int) {
	h.setState(h.table.setUnknown(h.State(), i))
}

// InvalidateAll forgets everything about every slot.
func (h *CacheHolder) InvalidateAll() {
	h.setState(h.invalid)
}

// InvalidateAllOutside resets the parked state while no step is running.
func (h *CacheHolder) InvalidateAllOutside() {
	h.nonvirt = h.invalid
}

func (h *CacheHolder) getFlags(m *Mem) MemFlags {
	if !h.useCache {
		return m.flags
	}
	s := h.State()
	i := m.slot
	if s.FlagKnown(i) {
		if h.debug && s.flags[i] != m.flags {
			panic(&CacheMismatchError{Slot: i, What: "flags", Cached: s.flags[i], Actual: m.flags})
		}
		return s.flags[i]
	}
	h.setState(h.table.changeFlags(s, i, m.flags))
	return m.flags
}

func (h *CacheHolder) setFlags(m *Mem, f MemFlags, needsWrite bool) {
	if !h.useCache {
		if needsWrite {
			m.flags = f
		}
		return
	}
	s := h.State()
	i := m.slot
	if s.FlagKnown(i) && s.flags[i] == f {
		if h.debug && m.flags != f {
			panic(&CacheMismatchError{Slot: i, What: "flags", Cached: f, Actual: m.flags})
		}
		return
	}
	if needsWrite || m.flags != f {
		m.flags = f
	}
	h.setState(h.table.changeFlags(s, i, f))
}

func (h *CacheHolder) getInt(m *Mem) int64 {
	if !h.useCache {
		return m.i
	}
	if v, ok := h.State().IntConstant(m.slot); ok {
		if h.debug && v != m.i {
			panic(&CacheMismatchError{Slot: m.slot, What: "integer", Cached: v, Actual: m.i})
		}
		return v
	}
	return m.i
}

func (h *CacheHolder) getReal(m *Mem) float64 {
	if !h.useCache {
		return m.r
	}
	if v, ok := h.State().RealConstant(m.slot); ok {
		if h.debug && math.Float64bits(v) != math.Float64bits(m.r) {
			panic(&CacheMismatchError{Slot: m.slot, What: "real", Cached: v, Actual: m.r})
		}
		return v
	}
	return m.r
}

// intWritten records that slot i now holds integer payload v.
func (h *CacheHolder) intWritten(i int, v int64, constant bool) {
	if !h.useCache {
		return
	}
	s := h.State()
	if constant && !h.table.full() {
		h.setState(h.table.setIntConstant(s, i, v))
		return
	}
	h.setState(h.table.changeStatus(s, i, s.status[i]&^(StatusConstant|StatusIntKnown)))
}

// realWritten records that slot i now holds real payload v.
func (h *CacheHolder) realWritten(i int, v float64, constant bool) {
	if !h.useCache {
		return
	}
	s := h.State()
	if constant && !h.table.full() {
		h.setState(h.table.setRealConstant(s, i, v))
		return
	}
	h.setState(h.table.changeStatus(s, i, s.status[i]&^(StatusConstant|StatusFloatKnown)))
}

// IsConstantInt reports whether the cache holds m's integer as a constant.
func (h *CacheHolder) IsConstantInt(m *Mem) bool {
	if !m.cached() || !h.useCache {
		return false
	}
	_, ok := h.State().IntConstant(m.slot)
	return ok
}

// IsConstantReal reports whether the cache holds m's real as a constant.
func (h *CacheHolder) IsConstantReal(m *Mem) bool {
	if !m.cached() || !h.useCache {
		return false
	}
	_, ok := h.State().RealConstant(m.slot)
	return ok
}
