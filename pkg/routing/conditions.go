package routing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Eval evaluates a route condition against the router's input data.
//
// Supported grammar:
//
//	<expr>  ::= <or>
//	<or>    ::= <and> ( "||" <and> )*
//	<and>   ::= <atom> ( "&&" <atom> )*
//	<atom>  ::= "!" <atom> | "(" <expr> ")" | <key> <op> <value> | <key>
//	<op>    ::= "==" | "!=" | "<" | "<=" | ">" | ">="
//	<key>   ::= alphanumeric + _ + .
//	<value> ::= single-quoted | double-quoted | bare word
//
// Dotted keys address nested values, so "Extractor.url" reads the url field
// of the Extractor entry. A bare key is truthy if its value is present, not
// empty, not false and not zero. Ordering operators compare numerically.
// An empty expression is always true.
func Eval(expr string, data map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", expr, err)
	}
	p := &condParser{input: expr, doc: gjson.ParseBytes(raw)}
	result, err := p.parseOr()
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", expr, err)
	}
	p.skipWS()
	if p.pos < len(p.input) {
		return false, fmt.Errorf("condition %q: unexpected %q at pos %d", expr, p.input[p.pos:], p.pos)
	}
	return result, nil
}

type condParser struct {
	input string
	pos   int
	doc   gjson.Result
}

func (p *condParser) peek() string {
	if p.pos >= len(p.input) {
		return ""
	}
	return p.input[p.pos:]
}

func (p *condParser) skipWS() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *condParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for {
		p.skipWS()
		if !strings.HasPrefix(p.peek(), "||") {
			break
		}
		p.pos += 2
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *condParser) parseAnd() (bool, error) {
	left, err := p.parseAtom()
	if err != nil {
		return false, err
	}
	for {
		p.skipWS()
		if !strings.HasPrefix(p.peek(), "&&") {
			break
		}
		p.pos += 2
		right, err := p.parseAtom()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

// operators in match order; two-character forms first.
var operators = []string{"==", "!=", "<=", ">=", "<", ">"}

func (p *condParser) parseAtom() (bool, error) {
	p.skipWS()
	if p.pos >= len(p.input) {
		return false, fmt.Errorf("unexpected end of expression")
	}
	if p.input[p.pos] == '!' && !strings.HasPrefix(p.peek(), "!=") {
		p.pos++
		v, err := p.parseAtom()
		return !v, err
	}
	if p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		p.skipWS()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return false, fmt.Errorf("expected ')'")
		}
		p.pos++
		return v, nil
	}
	key := p.parseKey()
	if key == "" {
		return false, fmt.Errorf("expected identifier at pos %d in %q", p.pos, p.input)
	}
	got := p.lookup(key)
	p.skipWS()
	for _, op := range operators {
		if !strings.HasPrefix(p.peek(), op) {
			continue
		}
		p.pos += len(op)
		p.skipWS()
		return compare(got, op, p.parseValue())
	}
	return truthy(got), nil
}

func (p *condParser) lookup(key string) gjson.Result {
	if v := p.doc.Get(gjson.Escape(key)); v.Exists() {
		return v
	}
	return p.doc.Get(key)
}

func compare(got gjson.Result, op, want string) (bool, error) {
	switch op {
	case "==":
		return got.Exists() && got.String() == want, nil
	case "!=":
		return !got.Exists() || got.String() != want, nil
	}
	if !got.Exists() {
		return false, nil
	}
	w, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return false, fmt.Errorf("operator %s needs a number, got %q", op, want)
	}
	g := got.Float()
	switch op {
	case "<":
		return g < w, nil
	case "<=":
		return g <= w, nil
	case ">":
		return g > w, nil
	default:
		return g >= w, nil
	}
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.String() != ""
	case gjson.JSON:
		return v.Raw != "[]" && v.Raw != "{}"
	default:
		return true
	}
}

func (p *condParser) parseKey() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '_' || c == '.' || c == '-' {
			p.pos++
		} else {
			break
		}
	}
	return p.input[start:p.pos]
}

func (p *condParser) parseValue() string {
	if p.pos >= len(p.input) {
		return ""
	}
	quote := p.input[p.pos]
	if quote == '\'' || quote == '"' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] != quote {
			p.pos++
		}
		val := p.input[start:p.pos]
		if p.pos < len(p.input) {
			p.pos++ // closing quote
		}
		return val
	}
	return p.parseKey()
}
