// Package calc evaluates arithmetic expressions for the calculate tool.
//
// The evaluator is a small hand-written lexer and recursive-descent
// parser. Only numeric literals, the operators + - * / % ^ (with ** as
// an alias for ^), parentheses, and a fixed set of named functions are
// accepted. There is no variable lookup and no host-language
// evaluation, so model-supplied expressions cannot reach anything
// outside this package.
package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// MaxExpressionLen bounds the accepted expression size. Longer inputs
// are rejected before lexing.
const MaxExpressionLen = 1024

// maxDepth bounds parser recursion so deeply nested input cannot
// exhaust the stack.
const maxDepth = 64

// Eval parses and evaluates expr, returning the numeric result.
// The function set is fixed: abs, round, min, max, pow.
func Eval(expr string) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, fmt.Errorf("empty expression")
	}
	if len(expr) > MaxExpressionLen {
		return 0, fmt.Errorf("expression exceeds %d characters", MaxExpressionLen)
	}

	toks, err := lex(expr)
	if err != nil {
		return 0, err
	}

	p := &parser{toks: toks}
	v, err := p.parseExpr(0)
	if err != nil {
		return 0, err
	}
	if !p.atEnd() {
		return 0, fmt.Errorf("unexpected %q after expression", p.peek().text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokCaret
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	val  float64 // set for tokNumber
	pos  int
}

func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r >= '0' && r <= '9' || r == '.':
			start := i
			for i < len(runes) && (runes[i] >= '0' && runes[i] <= '9' || runes[i] == '.') {
				i++
			}
			// Optional exponent: 1e3, 2.5e-4.
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
					i = j
					for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
						i++
					}
				}
			}
			text := string(runes[start:i])
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q at position %d", text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, val: v, pos: start})
		case unicode.IsLetter(r):
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[start:i]), pos: start})
		case r == '*':
			// ** is the power operator, * is multiplication.
			if i+1 < len(runes) && runes[i+1] == '*' {
				toks = append(toks, token{kind: tokCaret, text: "**", pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokStar, text: "*", pos: i})
				i++
			}
		default:
			kind, ok := singleCharToken(r)
			if !ok {
				return nil, fmt.Errorf("unexpected character %q at position %d", string(r), i)
			}
			toks = append(toks, token{kind: kind, text: string(r), pos: i})
			i++
		}
	}
	return toks, nil
}

func singleCharToken(r rune) (tokenKind, bool) {
	switch r {
	case '+':
		return tokPlus, true
	case '-':
		return tokMinus, true
	case '/':
		return tokSlash, true
	case '%':
		return tokPercent, true
	case '^':
		return tokCaret, true
	case '(':
		return tokLParen, true
	case ')':
		return tokRParen, true
	case ',':
		return tokComma, true
	}
	return 0, false
}

// parser implements the grammar:
//
//	expr    := term (('+'|'-') term)*
//	term    := unary (('*'|'/'|'%') unary)*
//	unary   := '-' unary | power
//	power   := primary (('^'|'**') unary)?   // right-associative
//	primary := NUMBER | IDENT '(' expr (',' expr)* ')' | '(' expr ')'
type parser struct {
	toks []token
	pos  int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.atEnd() {
		return token{text: "end of expression", pos: -1}
	}
	return p.toks[p.pos]
}

func (p *parser) next() (token, error) {
	if p.atEnd() {
		return token{}, fmt.Errorf("unexpected end of expression")
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *parser) accept(kind tokenKind) bool {
	if !p.atEnd() && p.toks[p.pos].kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseExpr(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("expression nests too deeply")
	}
	v, err := p.parseTerm(depth + 1)
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept(tokPlus):
			rhs, err := p.parseTerm(depth + 1)
			if err != nil {
				return 0, err
			}
			v += rhs
		case p.accept(tokMinus):
			rhs, err := p.parseTerm(depth + 1)
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *parser) parseTerm(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("expression nests too deeply")
	}
	v, err := p.parseUnary(depth + 1)
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept(tokStar):
			rhs, err := p.parseUnary(depth + 1)
			if err != nil {
				return 0, err
			}
			v *= rhs
		case p.accept(tokSlash):
			rhs, err := p.parseUnary(depth + 1)
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		case p.accept(tokPercent):
			rhs, err := p.parseUnary(depth + 1)
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			v = math.Mod(v, rhs)
		default:
			return v, nil
		}
	}
}

func (p *parser) parseUnary(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("expression nests too deeply")
	}
	if p.accept(tokMinus) {
		v, err := p.parseUnary(depth + 1)
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePower(depth + 1)
}

func (p *parser) parsePower(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("expression nests too deeply")
	}
	base, err := p.parsePrimary(depth + 1)
	if err != nil {
		return 0, err
	}
	if p.accept(tokCaret) {
		// Right-associative, and the exponent may carry a unary minus:
		// 2^-3 and 2^3^2 both parse.
		exp, err := p.parseUnary(depth + 1)
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) parsePrimary(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("expression nests too deeply")
	}
	t, err := p.next()
	if err != nil {
		return 0, err
	}

	switch t.kind {
	case tokNumber:
		return t.val, nil

	case tokLParen:
		v, err := p.parseExpr(depth + 1)
		if err != nil {
			return 0, err
		}
		if !p.accept(tokRParen) {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		return v, nil

	case tokIdent:
		if !p.accept(tokLParen) {
			return 0, fmt.Errorf("unknown name %q: only function calls are allowed", t.text)
		}
		var args []float64
		if !p.accept(tokRParen) {
			for {
				v, err := p.parseExpr(depth + 1)
				if err != nil {
					return 0, err
				}
				args = append(args, v)
				if p.accept(tokComma) {
					continue
				}
				if p.accept(tokRParen) {
					break
				}
				return 0, fmt.Errorf("expected ',' or ')' in arguments of %s", t.text)
			}
		}
		return applyFunc(t.text, args)

	default:
		return 0, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
}

// applyFunc dispatches the fixed function allow-list. Anything else is
// rejected by name.
func applyFunc(name string, args []float64) (float64, error) {
	switch strings.ToLower(name) {
	case "abs":
		if len(args) != 1 {
			return 0, fmt.Errorf("abs takes exactly 1 argument, got %d", len(args))
		}
		return math.Abs(args[0]), nil

	case "round":
		switch len(args) {
		case 1:
			return math.Round(args[0]), nil
		case 2:
			// round(x, n) rounds x to n decimal places.
			shift := math.Pow(10, math.Trunc(args[1]))
			return math.Round(args[0]*shift) / shift, nil
		default:
			return 0, fmt.Errorf("round takes 1 or 2 arguments, got %d", len(args))
		}

	case "min":
		if len(args) == 0 {
			return 0, fmt.Errorf("min takes at least 1 argument")
		}
		v := args[0]
		for _, a := range args[1:] {
			v = math.Min(v, a)
		}
		return v, nil

	case "max":
		if len(args) == 0 {
			return 0, fmt.Errorf("max takes at least 1 argument")
		}
		v := args[0]
		for _, a := range args[1:] {
			v = math.Max(v, a)
		}
		return v, nil

	case "pow":
		if len(args) != 2 {
			return 0, fmt.Errorf("pow takes exactly 2 arguments, got %d", len(args))
		}
		return math.Pow(args[0], args[1]), nil
	}
	return 0, fmt.Errorf("unknown function %q", name)
}

// Format renders a result the way a person would write it: integers
// without a decimal point, everything else in shortest form.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
