package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/vdbecore/core/errors"
)

// XML listings carry the same program as text listings:
//
//	<program registers="4" format="4">
//	  <column name="n"/>
//	  <table name="t1"/>
//	  <index name="i1" keyinfo="NOCASE DESC, BINARY"/>
//	  <op name="Init" p2="@start"/>
//	  <op label="start" name="Integer" p1="5" p2="1"/>
//	  <op name="Function" p2="1" p3="2" p4="func(abs,1)" comment="r[2]=abs(r[1])"/>
//	</program>
//
// Operand attributes use the text syntax. Directives become attributes of
// <program> and declarations become child elements.

var (
	programExpr = xpath.MustCompile("/program")
	childExpr   = xpath.MustCompile("*")
)

var programAttrs = []string{"registers", "cursors", "once", "vars", "format"}

// ParseXML assembles an XML listing.
func ParseXML(r io.Reader) (*Listing, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.NewParse("XML listing", "", err.Error())
	}
	root := xmlquery.QuerySelector(doc, programExpr)
	if root == nil {
		return nil, errors.NewParse("XML listing", "", "missing <program> element")
	}

	a := newAssembler()
	for _, name := range programAttrs {
		val := root.SelectAttr(name)
		if val == "" {
			continue
		}
		if err := a.parseLine(0, "."+name+" "+val); err != nil {
			return nil, err
		}
	}

	var lines []string
	var comments []string
	for i, el := range xmlquery.QuerySelectorAll(root, childExpr) {
		elNo := i + 1
		switch el.Data {
		case "column":
			lines = append(lines, ".column '"+escapeQuote(el.SelectAttr("name"))+"'")
		case "table":
			lines = append(lines, ".table "+el.SelectAttr("name"))
		case "index":
			lines = append(lines, fmt.Sprintf(".index %s keyinfo(%s)", el.SelectAttr("name"), el.SelectAttr("keyinfo")))
		case "op":
			line, err := opLine(el)
			if err != nil {
				return nil, errors.NewParse("XML listing", fmt.Sprintf("element %d", elNo), err.Error())
			}
			lines = append(lines, line)
			comments = append(comments, el.SelectAttr("comment"))
		default:
			return nil, errors.NewParse("XML listing", fmt.Sprintf("element %d", elNo), "unexpected <"+el.Data+">")
		}
	}
	for i, line := range lines {
		if err := a.parseLine(i+1, line); err != nil {
			return nil, err
		}
	}

	l, err := a.finish()
	if err != nil {
		return nil, err
	}
	for i, c := range comments {
		l.Program.Ops[i].Comment = c
	}
	return l, nil
}

// opLine renders an <op> element as a text listing line.
func opLine(el *xmlquery.Node) (string, error) {
	name := el.SelectAttr("name")
	if name == "" {
		return "", fmt.Errorf("<op> without a name")
	}
	var b strings.Builder
	if label := el.SelectAttr("label"); label != "" {
		b.WriteString(label + ": ")
	}
	b.WriteString(name)

	operands := make([]string, 5)
	last := -1
	for i := range operands {
		val := strings.TrimSpace(el.SelectAttr(fmt.Sprintf("p%d", i+1)))
		if strings.ContainsAny(val, "\n#;") && !strings.HasPrefix(val, "'") {
			return "", fmt.Errorf("invalid operand p%d %q", i+1, val)
		}
		if val == "" {
			val = "_"
		} else {
			last = i
		}
		operands[i] = val
	}
	for _, val := range operands[:last+1] {
		b.WriteString(" " + val)
	}
	return b.String(), nil
}

func escapeQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// parseLine assembles one text line into a.
func (a *assembler) parseLine(lineNo int, text string) error {
	ast, err := lineParser.ParseString("", text)
	if err != nil {
		return errors.NewParse("asm", fmt.Sprintf("line %d", lineNo), err.Error())
	}
	return a.line(lineNo, ast)
}
