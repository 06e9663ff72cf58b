package vdbe

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// Opcode represents a VDBE instruction opcode.
type Opcode uint8

// VDBE opcodes. The numbering is internal to this package; programs refer
// to opcodes by name.
const (
	// Control flow opcodes
	OpInit Opcode = iota
	OpGoto
	OpGosub
	OpReturn
	OpYield
	OpInitCoroutine
	OpEndCoroutine
	OpHalt
	OpIf
	OpIfNot
	OpIfPos
	OpIfZero
	OpIsNull
	OpNotNull
	OpOnce
	OpJump
	OpCompare
	OpNoop
	OpExplain

	// Register loads and moves
	OpInteger
	OpInt64
	OpReal
	OpString8
	OpString
	OpBlob
	OpNull
	OpVariable
	OpMove
	OpCopy
	OpSCopy
	OpResultRow

	// Arithmetic
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpRemainder
	OpAddImm
	OpConcat

	// Comparison
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// Type conversion
	OpAffinity
	OpRealAffinity
	OpCast
	OpMustBeInt

	// Cursor operations
	OpOpenRead
	OpOpenWrite
	OpOpenEphemeral
	OpOpenPseudo
	OpClose
	OpRewind
	OpLast
	OpSort
	OpNext
	OpPrev
	OpSeekLT
	OpSeekLE
	OpSeekGE
	OpSeekGT
	OpSeek
	OpNotExists
	OpFound
	OpNotFound
	OpIdxLE
	OpIdxGT
	OpIdxLT
	OpIdxGE
	OpIdxRowid
	OpColumn
	OpRowid
	OpNullRow
	OpSequence
	OpNewRowid
	OpInsert
	OpDelete
	OpIdxInsert

	// Records
	OpMakeRecord

	// Functions
	OpFunction
	OpAggStep
	OpAggFinal
	OpCollSeq

	numOpcodes
)

// OpcodeNames maps opcodes to their string names.
var OpcodeNames = map[Opcode]string{
	OpInit:          "Init",
	OpGoto:          "Goto",
	OpGosub:         "Gosub",
	OpReturn:        "Return",
	OpYield:         "Yield",
	OpInitCoroutine: "InitCoroutine",
	OpEndCoroutine:  "EndCoroutine",
	OpHalt:          "Halt",
	OpIf:            "If",
	OpIfNot:         "IfNot",
	OpIfPos:         "IfPos",
	OpIfZero:        "IfZero",
	OpIsNull:        "IsNull",
	OpNotNull:       "NotNull",
	OpOnce:          "Once",
	OpJump:          "Jump",
	OpCompare:       "Compare",
	OpNoop:          "Noop",
	OpExplain:       "Explain",
	OpInteger:       "Integer",
	OpInt64:         "Int64",
	OpReal:          "Real",
	OpString8:       "String8",
	OpString:        "String",
	OpBlob:          "Blob",
	OpNull:          "Null",
	OpVariable:      "Variable",
	OpMove:          "Move",
	OpCopy:          "Copy",
	OpSCopy:         "SCopy",
	OpResultRow:     "ResultRow",
	OpAdd:           "Add",
	OpSubtract:      "Subtract",
	OpMultiply:      "Multiply",
	OpDivide:        "Divide",
	OpRemainder:     "Remainder",
	OpAddImm:        "AddImm",
	OpConcat:        "Concat",
	OpEq:            "Eq",
	OpNe:            "Ne",
	OpLt:            "Lt",
	OpLe:            "Le",
	OpGt:            "Gt",
	OpGe:            "Ge",
	OpAffinity:      "Affinity",
	OpRealAffinity:  "RealAffinity",
	OpCast:          "Cast",
	OpMustBeInt:     "MustBeInt",
	OpOpenRead:      "OpenRead",
	OpOpenWrite:     "OpenWrite",
	OpOpenEphemeral: "OpenEphemeral",
	OpOpenPseudo:    "OpenPseudo",
	OpClose:         "Close",
	OpRewind:        "Rewind",
	OpLast:          "Last",
	OpSort:          "Sort",
	OpNext:          "Next",
	OpPrev:          "Prev",
	OpSeekLT:        "SeekLT",
	OpSeekLE:        "SeekLE",
	OpSeekGE:        "SeekGE",
	OpSeekGT:        "SeekGT",
	OpSeek:          "Seek",
	OpNotExists:     "NotExists",
	OpFound:         "Found",
	OpNotFound:      "NotFound",
	OpIdxLE:         "IdxLE",
	OpIdxGT:         "IdxGT",
	OpIdxLT:         "IdxLT",
	OpIdxGE:         "IdxGE",
	OpIdxRowid:      "IdxRowid",
	OpColumn:        "Column",
	OpRowid:         "Rowid",
	OpNullRow:       "NullRow",
	OpSequence:      "Sequence",
	OpNewRowid:      "NewRowid",
	OpInsert:        "Insert",
	OpDelete:        "Delete",
	OpIdxInsert:     "IdxInsert",
	OpMakeRecord:    "MakeRecord",
	OpFunction:      "Function",
	OpAggStep:       "AggStep",
	OpAggFinal:      "AggFinal",
	OpCollSeq:       "CollSeq",
}

var opcodesByName map[string]Opcode

func init() {
	opcodesByName = make(map[string]Opcode, len(OpcodeNames))
	for op, name := range OpcodeNames {
		opcodesByName[strings.ToLower(name)] = op
	}
}

// String returns the opcode name.
func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// LookupOpcode finds an opcode by case-insensitive name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[strings.ToLower(name)]
	return op, ok
}

// IsJump reports whether P2 of the opcode is a jump target.
func (op Opcode) IsJump() bool {
	switch op {
	case OpInit, OpGoto, OpGosub, OpInitCoroutine, OpIf, OpIfNot, OpIfPos, OpIfZero,
		OpIsNull, OpNotNull, OpOnce, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpMustBeInt,
		OpRewind, OpLast, OpSort, OpNext, OpPrev, OpSeekLT, OpSeekLE, OpSeekGE, OpSeekGT,
		OpNotExists, OpFound, OpNotFound, OpIdxLE, OpIdxGT, OpIdxLT, OpIdxGE, OpYield:
		return true
	}
	return false
}

// Comparison P5 flags.
const (
	SQLJumpIfNull uint16 = 0x10 // Jump to P2 if either operand is NULL
	SQLStoreP2    uint16 = 0x20 // Store the result in register P2 instead of jumping
	SQLNullEq     uint16 = 0x80 // NULL = NULL is true
	SQLAffMask    uint16 = 0x47 // Affinity to apply before comparing
)

// Insert P5 flags.
const (
	OpflagNChange   uint16 = 0x01 // Count the row change
	OpflagLastRowid uint16 = 0x20 // Remember the rowid as the last insert rowid
	OpflagAppend    uint16 = 0x08 // Rowid is known to be the largest
)

// P4Type represents the type of the P4 operand.
type P4Type int8

const (
	P4NotUsed P4Type = 0   // P4 parameter not used
	P4Static  P4Type = -1  // P4 is a string
	P4CollSeq P4Type = -2  // P4 is a collation sequence
	P4Int32   P4Type = -3  // P4 is a 32-bit signed integer
	P4Blob    P4Type = -6  // P4 is a byte string
	P4FuncDef P4Type = -7  // P4 is a function definition
	P4KeyInfo P4Type = -8  // P4 is key information for indexes
	P4Real    P4Type = -12 // P4 is a 64-bit float
	P4Int64   P4Type = -13 // P4 is a 64-bit signed integer
)

// P4Union represents the fourth operand which can be various types.
type P4Union struct {
	I       int32          // P4Int32
	I64     int64          // P4Int64
	R       float64        // P4Real
	Z       string         // P4Static
	B       []byte         // P4Blob
	Coll    *utf.Collation // P4CollSeq
	KeyInfo *KeyInfo       // P4KeyInfo
	Func    *FuncDef       // P4FuncDef
}

// Instruction represents a single VDBE instruction.
type Instruction struct {
	Opcode  Opcode  // The opcode to execute
	P1      int     // First operand
	P2      int     // Second operand (often jump destination)
	P3      int     // Third operand
	P4      P4Union // Fourth operand (various types)
	P4Type  P4Type  // Type of P4 operand
	P5      uint16  // Fifth operand
	Comment string  // Debug comment (if enabled)
}

// P4String renders the P4 operand for listings.
func (in *Instruction) P4String() string {
	switch in.P4Type {
	case P4Int32:
		return fmt.Sprintf("%d", in.P4.I)
	case P4Int64:
		return fmt.Sprintf("%d", in.P4.I64)
	case P4Real:
		return fmt.Sprintf("%g", in.P4.R)
	case P4Static:
		return fmt.Sprintf("%q", in.P4.Z)
	case P4Blob:
		return fmt.Sprintf("x'%X'", in.P4.B)
	case P4CollSeq:
		if in.P4.Coll != nil {
			return "coll(" + in.P4.Coll.String() + ")"
		}
	case P4KeyInfo:
		if ki := in.P4.KeyInfo; ki != nil {
			parts := make([]string, ki.NField())
			for i := range parts {
				parts[i] = ki.Collation(i).String()
				if ki.IsDesc(i) {
					parts[i] += " DESC"
				}
			}
			return "keyinfo(" + strings.Join(parts, ",") + ")"
		}
	case P4FuncDef:
		if in.P4.Func != nil {
			return fmt.Sprintf("%s(%d)", in.P4.Func.Name, in.P4.Func.NArg)
		}
	}
	return ""
}
