// Package asm assembles program listings into vdbe programs.
//
// A text listing has one instruction per line:
//
//	.registers 4
//	.table t1
//	        Init      0 @start
//	start:  Integer   5 1
//	        OpenRead  0 $t1
//	        Eq        1 @done 2 coll(NOCASE) 0x80
//	done:   Halt
//
// Operands are P1 P2 P3 P4 P5 in order; missing trailing operands are
// zero and an underscore skips one. P1 to P3 take integers, @labels and
// $trees. P4 takes an integer, a real, a 'string', a x'blob' or one of
// func(name,nArg), coll(NAME) and keyinfo(NAME [DESC], ...).
package asm

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/vdbecore/core/btree"
	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/utf"
	"github.com/FocuswithJustin/vdbecore/core/vdbe"
)

// Tree declares a table or index the program expects to find in storage.
// Trees are created in declaration order, so the i-th tree has root i+1.
type Tree struct {
	Name    string
	KeyInfo *vdbe.KeyInfo // nil for a rowid table
}

// Listing is an assembled program with the storage it runs against.
type Listing struct {
	Program *vdbe.Program
	Trees   []Tree
}

// Storage creates an in-memory database holding the declared trees.
func (l *Listing) Storage() *btree.Btree {
	bt := btree.New()
	for _, t := range l.Trees {
		if t.KeyInfo != nil {
			bt.CreateIndex(t.KeyInfo)
		} else {
			bt.CreateTable()
		}
	}
	return bt
}

// NewVDBE loads the program into a fresh machine backed by a new
// database holding the declared trees.
func (l *Listing) NewVDBE(cfg vdbe.Config) (*vdbe.VDBE, error) {
	v := vdbe.NewWithConfig(cfg)
	v.Storage = l.Storage()
	if err := v.Load(l.Program); err != nil {
		return nil, err
	}
	return v, nil
}

// Root returns the root of the named tree.
func (l *Listing) Root(name string) (int, bool) {
	for i, t := range l.Trees {
		if t.Name == name {
			return i + 1, true
		}
	}
	return 0, false
}

// Line grammar.
//
//nolint:govet // participle grammar tags are not standard struct tags
type lineAST struct {
	Directive *directiveAST `  @@`
	Instr     *instrAST     `| @@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type directiveAST struct {
	Name string        `@Directive`
	Args []*operandAST `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type instrAST struct {
	Label    *string       `@LabelDef?`
	Opcode   *string       `@Ident?`
	Operands []*operandAST `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type operandAST struct {
	Skip  bool     `  @"_"`
	Call  *callAST `| @@`
	Word  *string  `| @Ident`
	Label *string  `| @Label`
	Tree  *string  `| @Tree`
	Blob  *string  `| @Blob`
	Str   *string  `| @String`
	Real  *string  `| @Real`
	Int   *string  `| @(Hex | Int)`
}

//nolint:govet // participle grammar tags are not standard struct tags
type callAST struct {
	Name string    `@Ident "("`
	Args []*argAST `( @@ ( "," @@ )* )? ")"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type argAST struct {
	Str   *string  `  @String`
	Words []string `| @(Ident | Int | "*")+`
}

var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `[#;][^\n]*`},
	{Name: "Directive", Pattern: `\.[A-Za-z]+`},
	{Name: "Blob", Pattern: `[xX]'[0-9a-fA-F]*'`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "LabelDef", Pattern: `[A-Za-z_][A-Za-z0-9_]*:`},
	{Name: "Label", Pattern: `@[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Tree", Pattern: `\$[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Real", Pattern: `[-+]?(?:\d+\.\d*|\.\d+)(?:[eE][-+]?\d+)?|[-+]?\d+[eE][-+]?\d+`},
	{Name: "Hex", Pattern: `0[xX][0-9a-fA-F]+`},
	{Name: "Int", Pattern: `[-+]?\d+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[(),*]`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
})

var lineParser = participle.MustBuild[lineAST](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace", "Comment"),
)

// pendingRef is an operand that names a label, resolved once every line
// has been read.
type pendingRef struct {
	line  int
	addr  int
	slot  int // 1, 2 or 3
	label string
}

// assembler accumulates one listing.
type assembler struct {
	listing   *Listing
	labels    map[string]int
	pending   []string // labels waiting for the next instruction
	refs      []pendingRef
	numMem    int
	numCursor int
	haveMem   bool
	haveCurs  bool
}

func newAssembler() *assembler {
	return &assembler{
		listing: &Listing{Program: &vdbe.Program{}},
		labels:  make(map[string]int),
	}
}

// Parse assembles a text listing.
func Parse(src string) (*Listing, error) {
	a := newAssembler()
	for i, raw := range strings.Split(src, "\n") {
		lineNo := i + 1
		text := strings.TrimSpace(raw)
		if text == "" || text[0] == '#' || text[0] == ';' {
			continue
		}
		if err := a.parseLine(lineNo, text); err != nil {
			return nil, err
		}
	}
	return a.finish()
}

// MustParse is like Parse but panics on error.
func MustParse(src string) *Listing {
	l, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return l
}

func (a *assembler) line(lineNo int, ast *lineAST) error {
	if ast.Directive != nil {
		return a.directive(lineNo, ast.Directive)
	}
	in := ast.Instr
	if in == nil {
		return nil
	}
	if in.Label != nil {
		name := strings.TrimSuffix(*in.Label, ":")
		if _, dup := a.labels[name]; dup {
			return lineErr(lineNo, "label %q defined twice", name)
		}
		a.labels[name] = -1
		a.pending = append(a.pending, name)
	}
	if in.Opcode == nil {
		if len(in.Operands) > 0 {
			return lineErr(lineNo, "operands without an opcode")
		}
		return nil
	}
	ops, err := a.operands(lineNo, *in.Opcode, in.Operands)
	if err != nil {
		return err
	}
	return a.emit(lineNo, ops)
}

// instrSpec is an instruction with its label operands still unresolved.
type instrSpec struct {
	instr  *vdbe.Instruction
	labels [3]string
}

func (a *assembler) operands(lineNo int, name string, args []*operandAST) (*instrSpec, error) {
	opcode, ok := vdbe.LookupOpcode(name)
	if !ok {
		return nil, lineErr(lineNo, "unknown opcode %q", name)
	}
	if len(args) > 5 {
		return nil, lineErr(lineNo, "%s takes at most 5 operands, got %d", opcode, len(args))
	}
	spec := &instrSpec{instr: &vdbe.Instruction{Opcode: opcode}}
	in := spec.instr
	for i, arg := range args {
		if arg.Skip {
			continue
		}
		switch i {
		case 0, 1, 2:
			n, label, err := a.register(lineNo, arg)
			if err != nil {
				return nil, err
			}
			spec.labels[i] = label
			switch i {
			case 0:
				in.P1 = n
			case 1:
				in.P2 = n
			case 2:
				in.P3 = n
			}
		case 3:
			if err := setP4(in, arg); err != nil {
				return nil, lineErr(lineNo, "P4: %v", err)
			}
		case 4:
			if arg.Int == nil {
				return nil, lineErr(lineNo, "P5 must be an integer")
			}
			n, err := strconv.ParseUint(*arg.Int, 0, 16)
			if err != nil {
				return nil, lineErr(lineNo, "invalid P5 %q: %v", *arg.Int, err)
			}
			in.P5 = uint16(n)
		}
	}
	return spec, nil
}

// register decodes one of P1 to P3.
func (a *assembler) register(lineNo int, arg *operandAST) (int, string, error) {
	switch {
	case arg.Int != nil:
		n, err := strconv.ParseInt(*arg.Int, 0, 32)
		if err != nil {
			return 0, "", lineErr(lineNo, "invalid operand %q: %v", *arg.Int, err)
		}
		return int(n), "", nil
	case arg.Label != nil:
		return 0, strings.TrimPrefix(*arg.Label, "@"), nil
	case arg.Tree != nil:
		name := strings.TrimPrefix(*arg.Tree, "$")
		root, ok := a.listing.Root(name)
		if !ok {
			return 0, "", lineErr(lineNo, "no such tree %q", name)
		}
		return root, "", nil
	}
	return 0, "", lineErr(lineNo, "P1 to P3 must be integers, labels or trees")
}

func (a *assembler) emit(lineNo int, spec *instrSpec) error {
	p := a.listing.Program
	addr := len(p.Ops)
	for _, name := range a.pending {
		a.labels[name] = addr
	}
	a.pending = a.pending[:0]
	for i, label := range spec.labels {
		if label != "" {
			a.refs = append(a.refs, pendingRef{line: lineNo, addr: addr, slot: i + 1, label: label})
		}
	}
	in := spec.instr
	for i, n := range []int{in.P1, in.P2, in.P3} {
		if spec.labels[i] != "" {
			continue
		}
		if n+1 > a.numMem {
			a.numMem = n + 1
		}
		if i == 0 && n+1 > a.numCursor {
			a.numCursor = n + 1
		}
	}
	p.Ops = append(p.Ops, in)
	return nil
}

func (a *assembler) directive(lineNo int, d *directiveAST) error {
	p := a.listing.Program
	name := strings.ToLower(strings.TrimPrefix(d.Name, "."))

	count := func() (int, error) {
		if len(d.Args) != 1 || d.Args[0].Int == nil {
			return 0, lineErr(lineNo, ".%s takes one integer", name)
		}
		n, err := strconv.ParseInt(*d.Args[0].Int, 0, 32)
		if err != nil || n < 0 {
			return 0, lineErr(lineNo, "invalid count for .%s: %s", name, *d.Args[0].Int)
		}
		return int(n), nil
	}

	var err error
	switch name {
	case "registers":
		p.NumMem, err = count()
		a.haveMem = true
	case "cursors":
		p.NumCursor, err = count()
		a.haveCurs = true
	case "once":
		p.NumOnce, err = count()
	case "vars":
		p.NumVar, err = count()
	case "format":
		p.FileFormat, err = count()
	case "column":
		for _, arg := range d.Args {
			switch {
			case arg.Word != nil:
				p.Columns = append(p.Columns, *arg.Word)
			case arg.Str != nil:
				p.Columns = append(p.Columns, unquote(*arg.Str))
			default:
				return lineErr(lineNo, ".column takes names")
			}
		}
	case "table", "index":
		if len(d.Args) == 0 || d.Args[0].Word == nil {
			return lineErr(lineNo, ".%s needs a name", name)
		}
		tree := Tree{Name: *d.Args[0].Word}
		if _, dup := a.listing.Root(tree.Name); dup {
			return lineErr(lineNo, "tree %q declared twice", tree.Name)
		}
		if name == "index" {
			if len(d.Args) != 2 || d.Args[1].Call == nil || d.Args[1].Call.Name != "keyinfo" {
				return lineErr(lineNo, ".index %s needs a keyinfo(...)", tree.Name)
			}
			tree.KeyInfo, err = keyInfo(d.Args[1].Call)
			if err != nil {
				return lineErr(lineNo, "%v", err)
			}
		} else if len(d.Args) != 1 {
			return lineErr(lineNo, ".table takes one name")
		}
		a.listing.Trees = append(a.listing.Trees, tree)
	default:
		return lineErr(lineNo, "unknown directive .%s", name)
	}
	return err
}

func (a *assembler) finish() (*Listing, error) {
	p := a.listing.Program
	for _, name := range a.pending {
		a.labels[name] = len(p.Ops)
	}
	for _, ref := range a.refs {
		addr, ok := a.labels[ref.label]
		if !ok {
			return nil, lineErr(ref.line, "undefined label %q", ref.label)
		}
		in := p.Ops[ref.addr]
		switch ref.slot {
		case 1:
			in.P1 = addr
		case 2:
			in.P2 = addr
		case 3:
			in.P3 = addr
		}
	}
	if !a.haveMem {
		p.NumMem = a.numMem
	}
	if !a.haveCurs {
		p.NumCursor = a.numCursor
	}
	return a.listing, nil
}

// setP4 decodes a P4 literal into in.
func setP4(in *vdbe.Instruction, arg *operandAST) error {
	switch {
	case arg.Int != nil:
		n, err := strconv.ParseInt(*arg.Int, 0, 64)
		if err != nil {
			return err
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			in.P4Type, in.P4.I = vdbe.P4Int32, int32(n)
		} else {
			in.P4Type, in.P4.I64 = vdbe.P4Int64, n
		}
	case arg.Real != nil:
		r, err := strconv.ParseFloat(*arg.Real, 64)
		if err != nil {
			return err
		}
		in.P4Type, in.P4.R = vdbe.P4Real, r
	case arg.Str != nil:
		in.P4Type, in.P4.Z = vdbe.P4Static, unquote(*arg.Str)
	case arg.Blob != nil:
		b, err := decodeBlob(*arg.Blob)
		if err != nil {
			return err
		}
		in.P4Type, in.P4.B = vdbe.P4Blob, b
	case arg.Call != nil:
		return setP4Call(in, arg.Call)
	default:
		return fmt.Errorf("unsupported literal")
	}
	return nil
}

func setP4Call(in *vdbe.Instruction, c *callAST) error {
	switch strings.ToLower(c.Name) {
	case "func":
		if len(c.Args) != 2 {
			return fmt.Errorf("func(name, nArg) takes two arguments")
		}
		name := c.Args[0].text()
		n, err := strconv.Atoi(c.Args[1].text())
		if err != nil {
			return fmt.Errorf("invalid argument count %q", c.Args[1].text())
		}
		in.P4Type, in.P4.Func = vdbe.P4FuncDef, &vdbe.FuncDef{Name: name, NArg: n}
	case "coll":
		if len(c.Args) != 1 {
			return fmt.Errorf("coll(NAME) takes one argument")
		}
		coll, ok := utf.LookupCollation(c.Args[0].text())
		if !ok {
			return fmt.Errorf("no such collation sequence: %s", c.Args[0].text())
		}
		in.P4Type, in.P4.Coll = vdbe.P4CollSeq, &coll
	case "keyinfo":
		ki, err := keyInfo(c)
		if err != nil {
			return err
		}
		in.P4Type, in.P4.KeyInfo = vdbe.P4KeyInfo, ki
	default:
		return fmt.Errorf("unknown P4 form %s(...)", c.Name)
	}
	return nil
}

func keyInfo(c *callAST) (*vdbe.KeyInfo, error) {
	ki := &vdbe.KeyInfo{}
	for _, arg := range c.Args {
		words := arg.Words
		if arg.Str != nil {
			words = []string{unquote(*arg.Str)}
		}
		if len(words) == 0 || len(words) > 2 {
			return nil, fmt.Errorf("key column must be NAME or NAME DESC")
		}
		coll, ok := utf.LookupCollation(words[0])
		if !ok {
			return nil, fmt.Errorf("no such collation sequence: %s", words[0])
		}
		desc := false
		if len(words) == 2 {
			switch strings.ToUpper(words[1]) {
			case "DESC":
				desc = true
			case "ASC":
			default:
				return nil, fmt.Errorf("unexpected %q after collation", words[1])
			}
		}
		ki.Collations = append(ki.Collations, coll)
		ki.Desc = append(ki.Desc, desc)
	}
	return ki, nil
}

func (arg *argAST) text() string {
	if arg.Str != nil {
		return unquote(*arg.Str)
	}
	return strings.Join(arg.Words, "")
}

// unquote strips the quotes from a 'string' literal and folds '' to '.
func unquote(s string) string {
	s = s[1 : len(s)-1]
	return strings.ReplaceAll(s, "''", "'")
}

func decodeBlob(s string) ([]byte, error) {
	b, err := hex.DecodeString(s[2 : len(s)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid blob literal %s: %w", s, err)
	}
	return b, nil
}

func lineErr(lineNo int, format string, args ...interface{}) error {
	return errors.NewParse("asm", fmt.Sprintf("line %d", lineNo), fmt.Sprintf(format, args...))
}
