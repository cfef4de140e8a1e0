// Package arith evaluates shell arithmetic: 64-bit signed integers with
// C-like precedence, assignment operators, pre/post increment, ternary,
// comma, and the 0/0x/base# numeric bases.
//
// The grammar is declared with participle; evaluation walks the parsed tree
// against an Env supplied by the interpreter.
package arith

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Env gives the evaluator access to shell variables. Get returns the raw
// string value ("" when unset); Set stores a decimal value.
type Env interface {
	Get(name string) string
	Set(name, value string)
}

// Error is an arithmetic failure (division by zero, bad base, bad token).
// The interpreter reports it with exit code 1.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

var arithLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "Number", Pattern: `[0-9][0-9a-zA-Z#@_]*`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `<<=|>>=|\*\*|\+\+|--|&&|\|\||<=|>=|==|!=|\+=|-=|\*=|/=|%=|&=|\^=|\|=|<<|>>|[-+*/%&^|~!<>=?:,()]`},
})

// Expr is the top-level comma expression.
type Expr struct {
	Parts []*AssignExpr `parser:"@@ ( ',' @@ )*"`
}

// AssignExpr is either name op= expr or a conditional expression.
type AssignExpr struct {
	Name *string     `parser:"( @Ident"`
	Op   *string     `parser:"  @( '=' | '+=' | '-=' | '*=' | '/=' | '%=' | '&=' | '|=' | '^=' | '<<=' | '>>=' )"`
	RHS  *AssignExpr `parser:"  @@ )"`
	Cond *CondExpr   `parser:"| @@"`
}

// CondExpr is the ternary tier.
type CondExpr struct {
	Test *OrExpr   `parser:"@@"`
	Then *Expr     `parser:"( '?' @@"`
	Else *CondExpr `parser:"  ':' @@ )?"`
}

type OrExpr struct {
	First *AndExpr   `parser:"@@"`
	Rest  []*AndExpr `parser:"( '||' @@ )*"`
}

type AndExpr struct {
	First *BitOrExpr   `parser:"@@"`
	Rest  []*BitOrExpr `parser:"( '&&' @@ )*"`
}

type BitOrExpr struct {
	First *BitXorExpr   `parser:"@@"`
	Rest  []*BitXorExpr `parser:"( '|' @@ )*"`
}

type BitXorExpr struct {
	First *BitAndExpr   `parser:"@@"`
	Rest  []*BitAndExpr `parser:"( '^' @@ )*"`
}

type BitAndExpr struct {
	First *EqExpr   `parser:"@@"`
	Rest  []*EqExpr `parser:"( '&' @@ )*"`
}

type EqExpr struct {
	First *RelExpr `parser:"@@"`
	Rest  []*EqOp  `parser:"@@*"`
}

type EqOp struct {
	Op   string   `parser:"@( '==' | '!=' )"`
	Term *RelExpr `parser:"@@"`
}

type RelExpr struct {
	First *ShiftExpr `parser:"@@"`
	Rest  []*RelOp   `parser:"@@*"`
}

type RelOp struct {
	Op   string     `parser:"@( '<=' | '>=' | '<' | '>' )"`
	Term *ShiftExpr `parser:"@@"`
}

type ShiftExpr struct {
	First *AddExpr   `parser:"@@"`
	Rest  []*ShiftOp `parser:"@@*"`
}

type ShiftOp struct {
	Op   string   `parser:"@( '<<' | '>>' )"`
	Term *AddExpr `parser:"@@"`
}

type AddExpr struct {
	First *MulExpr `parser:"@@"`
	Rest  []*AddOp `parser:"@@*"`
}

type AddOp struct {
	Op   string   `parser:"@( '+' | '-' )"`
	Term *MulExpr `parser:"@@"`
}

type MulExpr struct {
	First *PowExpr `parser:"@@"`
	Rest  []*MulOp `parser:"@@*"`
}

type MulOp struct {
	Op   string   `parser:"@( '*' | '/' | '%' )"`
	Term *PowExpr `parser:"@@"`
}

// PowExpr is right-associative exponentiation.
type PowExpr struct {
	Base *UnaryExpr `parser:"@@"`
	Exp  *PowExpr   `parser:"( '**' @@ )?"`
}

type UnaryExpr struct {
	Op      *string    `parser:"( @( '!' | '~' | '-' | '+' | '++' | '--' )"`
	Expr    *UnaryExpr `parser:"  @@ )"`
	Postfix *PostExpr  `parser:"| @@"`
}

type PostExpr struct {
	Primary *Primary `parser:"@@"`
	Ops     []string `parser:"@( '++' | '--' )*"`
}

type Primary struct {
	Number *string `parser:"@Number"`
	Name   *string `parser:"| @Ident"`
	Sub    *Expr   `parser:"| '(' @@ ')'"`
}

var arithParser = participle.MustBuild[Expr](
	participle.Lexer(arithLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Eval parses and evaluates expr against env. Empty input evaluates to 0,
// matching $(( )) and missing for-loop sections.
func Eval(expr string, env Env) (int64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, nil
	}
	if strings.Contains(expr, ".") {
		return 0, errf("syntax error: invalid arithmetic operator (error token is \".\")")
	}
	tree, err := arithParser.ParseString("", expr)
	if err != nil {
		return 0, errf("syntax error in expression (error token is %q)", expr)
	}
	ev := &evaluator{env: env}
	return ev.expr(tree)
}
