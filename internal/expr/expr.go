// Package expr evaluates the restricted arithmetic/boolean expression
// language used by workflow conditions and computed parameters.
//
// The grammar is closed on purpose: numbers, booleans, named variables,
// the operators + - * / // % **, comparisons, and/or/not, and a fixed
// allow-list of math functions. Strings, collections and anything with
// side effects are rejected with UnsupportedOperatorError.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Value is the result of an evaluation: a number or a boolean.
type Value struct {
	isBool bool
	num    float64
	b      bool
}

// Number wraps a float64 as a Value.
func Number(f float64) Value { return Value{num: f} }

// Bool wraps a bool as a Value.
func Bool(b bool) Value { return Value{isBool: true, b: b} }

// IsBool reports whether the value is a boolean.
func (v Value) IsBool() bool { return v.isBool }

// Num returns the numeric value. Booleans convert to 0/1.
func (v Value) Num() float64 {
	if v.isBool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.num
}

// Truthy reports whether the value counts as true in a condition.
// Numbers are true when non-zero.
func (v Value) Truthy() bool {
	if v.isBool {
		return v.b
	}
	return v.num != 0
}

func (v Value) String() string {
	if v.isBool {
		return strconv.FormatBool(v.b)
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// UnknownVariableError reports a variable name absent from the context.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

// UnsupportedOperatorError reports a token or construct outside the
// fixed grammar, including calls to functions not on the allow-list.
type UnsupportedOperatorError struct {
	Op string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator or construct %q", e.Op)
}

// EvalError reports arity, type or math faults inside a valid expression.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

// Evaluate parses and evaluates src against the variable context.
// It is side-effect free and safe for repeated calls with different
// contexts.
func Evaluate(src string, vars map[string]Value) (Value, error) {
	p := &parser{src: src, vars: vars}
	if err := p.next(); err != nil {
		return Value{}, err
	}
	v, err := p.parseOr()
	if err != nil {
		return Value{}, err
	}
	if p.tok.kind != tokEOF {
		return Value{}, &UnsupportedOperatorError{Op: p.tok.text}
	}
	return v, nil
}

// function table

type fn struct {
	minArgs int
	maxArgs int // -1 = variadic
	call    func(args []float64) (float64, error)
}

func one(f func(float64) float64) fn {
	return fn{1, 1, func(a []float64) (float64, error) { return f(a[0]), nil }}
}

func two(f func(float64, float64) float64) fn {
	return fn{2, 2, func(a []float64) (float64, error) { return f(a[0], a[1]), nil }}
}

var functions = map[string]fn{
	"abs":   one(math.Abs),
	"floor": one(math.Floor),
	"ceil":  one(math.Ceil),
	"trunc": one(math.Trunc),
	"round": one(math.Round),
	"sin":   one(math.Sin),
	"cos":   one(math.Cos),
	"tan":   one(math.Tan),
	"exp":   one(math.Exp),
	"degrees": one(func(x float64) float64 { return x * 180 / math.Pi }),
	"radians": one(func(x float64) float64 { return x * math.Pi / 180 }),
	"pow":   two(math.Pow),
	"atan2": two(math.Atan2),
	"hypot": two(math.Hypot),
	"sqrt": {1, 1, func(a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, evalErrorf("sqrt of negative number %g", a[0])
		}
		return math.Sqrt(a[0]), nil
	}},
	"asin": {1, 1, func(a []float64) (float64, error) {
		if a[0] < -1 || a[0] > 1 {
			return 0, evalErrorf("asin argument %g out of range", a[0])
		}
		return math.Asin(a[0]), nil
	}},
	"acos": {1, 1, func(a []float64) (float64, error) {
		if a[0] < -1 || a[0] > 1 {
			return 0, evalErrorf("acos argument %g out of range", a[0])
		}
		return math.Acos(a[0]), nil
	}},
	"atan": one(math.Atan),
	"log": {1, 1, func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, evalErrorf("log of non-positive number %g", a[0])
		}
		return math.Log(a[0]), nil
	}},
	"log10": {1, 1, func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, evalErrorf("log10 of non-positive number %g", a[0])
		}
		return math.Log10(a[0]), nil
	}},
	"min": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, x := range a[1:] {
			m = math.Min(m, x)
		}
		return m, nil
	}},
	"max": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, x := range a[1:] {
			m = math.Max(m, x)
		}
		return m, nil
	}},
}

// lexer

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

type parser struct {
	src  string
	pos  int
	tok  token
	vars map[string]Value
}

func (p *parser) next() error {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF}
		return nil
	}

	c := p.src[p.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
			p.pos++
		}
		// exponent suffix
		if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
			q := p.pos + 1
			if q < len(p.src) && (p.src[q] == '+' || p.src[q] == '-') {
				q++
			}
			digits := q
			for q < len(p.src) && p.src[q] >= '0' && p.src[q] <= '9' {
				q++
			}
			if q > digits {
				p.pos = q
			}
		}
		text := p.src[start:p.pos]
		num, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return &UnsupportedOperatorError{Op: text}
		}
		p.tok = token{kind: tokNumber, text: text, num: num}
		return nil

	case c == '_' || unicode.IsLetter(rune(c)):
		start := p.pos
		for p.pos < len(p.src) {
			r := p.src[p.pos]
			if r == '_' || unicode.IsLetter(rune(r)) || r >= '0' && r <= '9' {
				p.pos++
				continue
			}
			break
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos]}
		return nil

	case c == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "("}
		return nil
	case c == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")"}
		return nil
	case c == ',':
		p.pos++
		p.tok = token{kind: tokComma, text: ","}
		return nil
	}

	// multi-character operators first
	for _, op := range []string{"**", "//", "==", "!=", "<=", ">="} {
		if strings.HasPrefix(p.src[p.pos:], op) {
			p.pos += 2
			p.tok = token{kind: tokOp, text: op}
			return nil
		}
	}
	switch c {
	case '+', '-', '*', '/', '%', '<', '>':
		p.pos++
		p.tok = token{kind: tokOp, text: string(c)}
		return nil
	}
	return &UnsupportedOperatorError{Op: string(c)}
}

func (p *parser) expect(kind tokenKind, what string) error {
	if p.tok.kind != kind {
		return &UnsupportedOperatorError{Op: p.tok.text + " (expected " + what + ")"}
	}
	return p.next()
}

// parseOr handles "or" with short-circuit evaluation. Because the
// evaluator is pure, "short-circuit" only decides which value wins;
// both sides still need to parse, so the right side is evaluated and
// discarded when the left side already settles the result. Errors on
// the right side are still surfaced: a broken expression should never
// pass just because the left operand happened to be true.
func (p *parser) parseOr() (Value, error) {
	left, err := p.parseAnd()
	if err != nil {
		return Value{}, err
	}
	for p.tok.kind == tokIdent && p.tok.text == "or" {
		if err := p.next(); err != nil {
			return Value{}, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return Value{}, err
		}
		if !left.Truthy() {
			left = right
		}
	}
	return left, nil
}

func (p *parser) parseAnd() (Value, error) {
	left, err := p.parseNot()
	if err != nil {
		return Value{}, err
	}
	for p.tok.kind == tokIdent && p.tok.text == "and" {
		if err := p.next(); err != nil {
			return Value{}, err
		}
		right, err := p.parseNot()
		if err != nil {
			return Value{}, err
		}
		if left.Truthy() {
			left = right
		}
	}
	return left, nil
}

func (p *parser) parseNot() (Value, error) {
	if p.tok.kind == tokIdent && p.tok.text == "not" {
		if err := p.next(); err != nil {
			return Value{}, err
		}
		v, err := p.parseNot()
		if err != nil {
			return Value{}, err
		}
		return Bool(!v.Truthy()), nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Value, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return Value{}, err
	}
	if p.tok.kind != tokOp {
		return left, nil
	}
	op := p.tok.text
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
	default:
		return left, nil
	}
	if err := p.next(); err != nil {
		return Value{}, err
	}
	right, err := p.parseAddSub()
	if err != nil {
		return Value{}, err
	}

	if op == "==" || op == "!=" {
		eq := left.isBool == right.isBool && left.Num() == right.Num() && left.b == right.b
		if op == "!=" {
			eq = !eq
		}
		return Bool(eq), nil
	}
	if left.isBool || right.isBool {
		return Value{}, evalErrorf("ordered comparison %q on boolean operand", op)
	}
	a, b := left.num, right.num
	switch op {
	case "<":
		return Bool(a < b), nil
	case "<=":
		return Bool(a <= b), nil
	case ">":
		return Bool(a > b), nil
	default:
		return Bool(a >= b), nil
	}
}

func (p *parser) parseAddSub() (Value, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return Value{}, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return Value{}, err
		}
		right, err := p.parseMulDiv()
		if err != nil {
			return Value{}, err
		}
		if op == "+" {
			left = Number(left.Num() + right.Num())
		} else {
			left = Number(left.Num() - right.Num())
		}
	}
	return left, nil
}

func (p *parser) parseMulDiv() (Value, error) {
	left, err := p.parseUnary()
	if err != nil {
		return Value{}, err
	}
	for p.tok.kind == tokOp {
		op := p.tok.text
		if op != "*" && op != "/" && op != "//" && op != "%" {
			break
		}
		if err := p.next(); err != nil {
			return Value{}, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		a, b := left.Num(), right.Num()
		switch op {
		case "*":
			left = Number(a * b)
		case "/":
			if b == 0 {
				return Value{}, evalErrorf("division by zero")
			}
			left = Number(a / b)
		case "//":
			if b == 0 {
				return Value{}, evalErrorf("floor division by zero")
			}
			left = Number(math.Floor(a / b))
		case "%":
			if b == 0 {
				return Value{}, evalErrorf("modulo by zero")
			}
			r := math.Mod(a, b)
			if r != 0 && (r < 0) != (b < 0) {
				r += b
			}
			left = Number(r)
		}
	}
	return left, nil
}

func (p *parser) parseUnary() (Value, error) {
	if p.tok.kind == tokOp && p.tok.text == "-" {
		if err := p.next(); err != nil {
			return Value{}, err
		}
		v, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		return Number(-v.Num()), nil
	}
	if p.tok.kind == tokOp && p.tok.text == "+" {
		if err := p.next(); err != nil {
			return Value{}, err
		}
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Value, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return Value{}, err
	}
	if p.tok.kind == tokOp && p.tok.text == "**" {
		if err := p.next(); err != nil {
			return Value{}, err
		}
		// right-associative; unary minus is allowed in the exponent
		exp, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		r := math.Pow(base.Num(), exp.Num())
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return Value{}, evalErrorf("invalid power %g ** %g", base.Num(), exp.Num())
		}
		return Number(r), nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Value, error) {
	switch p.tok.kind {
	case tokNumber:
		v := Number(p.tok.num)
		if err := p.next(); err != nil {
			return Value{}, err
		}
		return v, nil

	case tokLParen:
		if err := p.next(); err != nil {
			return Value{}, err
		}
		v, err := p.parseOr()
		if err != nil {
			return Value{}, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return Value{}, err
		}
		return v, nil

	case tokIdent:
		name := p.tok.text
		switch name {
		case "true", "True":
			if err := p.next(); err != nil {
				return Value{}, err
			}
			return Bool(true), nil
		case "false", "False":
			if err := p.next(); err != nil {
				return Value{}, err
			}
			return Bool(false), nil
		case "and", "or", "not":
			return Value{}, &UnsupportedOperatorError{Op: name}
		}
		if err := p.next(); err != nil {
			return Value{}, err
		}
		if p.tok.kind == tokLParen {
			return p.parseCall(name)
		}
		v, ok := p.vars[name]
		if !ok {
			return Value{}, &UnknownVariableError{Name: name}
		}
		return v, nil
	}
	return Value{}, &UnsupportedOperatorError{Op: p.tok.text}
}

func (p *parser) parseCall(name string) (Value, error) {
	f, ok := functions[name]
	if !ok {
		return Value{}, &UnsupportedOperatorError{Op: name + "()"}
	}
	if err := p.next(); err != nil { // consume "("
		return Value{}, err
	}
	var args []float64
	if p.tok.kind != tokRParen {
		for {
			v, err := p.parseOr()
			if err != nil {
				return Value{}, err
			}
			args = append(args, v.Num())
			if p.tok.kind != tokComma {
				break
			}
			if err := p.next(); err != nil {
				return Value{}, err
			}
		}
	}
	if err := p.expect(tokRParen, ")"); err != nil {
		return Value{}, err
	}
	if len(args) < f.minArgs || f.maxArgs >= 0 && len(args) > f.maxArgs {
		return Value{}, evalErrorf("%s: wrong number of arguments (%d)", name, len(args))
	}
	r, err := f.call(args)
	if err != nil {
		return Value{}, err
	}
	return Number(r), nil
}
