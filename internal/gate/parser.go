package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a syntactically invalid gate expression. No checks
// run when parsing fails.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gate expression: %s (at offset %d)", e.Message, e.Pos)
}

// knownChecks is the closed set of check names the parser accepts.
var knownChecks = map[string]bool{
	"typecheck":         true,
	"tests":             true,
	"lint":              true,
	"manual_override":   true,
	"memory":            true,
	"traceability":      true,
	"evidence_exists":   true,
	"evidence_coverage": true,
}

// thresholdFields maps a threshold subject to the fields it reports.
var thresholdFields = map[string]map[string]bool{
	"evidence": {"coverage": true},
	"tests":    {"passed": true, "failed": true},
}

// Parse turns a gate expression into its AST. An empty or blank source
// is a ParseError; treat "no gate" before calling Parse.
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &ParseError{Pos: 0, Message: "empty expression"}
	}
	tokens, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, &ParseError{Pos: tok.pos, Message: fmt.Sprintf("trailing %s %q", tok.kind, tok.text)}
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

// parseOr := and ( "OR" and )*
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().isKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

// parseAnd := not ( "AND" not )*
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().isKeyword("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
	return left, nil
}

// parseNot := "NOT" not | atom
func (p *parser) parseNot() (Expr, error) {
	if p.peek().isKeyword("NOT") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	return p.parseAtom()
}

// parseAtom := "(" expr ")" | check
func (p *parser) parseAtom() (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, &ParseError{Pos: closing.pos, Message: "missing ')'"}
		}
		return inner, nil
	case tokenWord:
		return p.parseCheck()
	case tokenEOF:
		return nil, &ParseError{Pos: tok.pos, Message: "expected a check, got end of expression"}
	default:
		return nil, &ParseError{Pos: tok.pos, Message: fmt.Sprintf("expected a check, got %s %q", tok.kind, tok.text)}
	}
}

// parseCheck := ident ( "(" arg ( "," arg )* ")" )? | ident "[" field "]" op number
func (p *parser) parseCheck() (Expr, error) {
	ident := p.next()
	name := strings.ToLower(ident.text)

	switch p.peek().kind {
	case tokenLBracket:
		return p.parseThreshold(ident, name)
	case tokenLParen:
		p.next()
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if !knownChecks[name] {
			return nil, &ParseError{Pos: ident.pos, Message: fmt.Sprintf("unknown check %q", ident.text)}
		}
		return &CheckExpr{Name: name, Args: args}, nil
	default:
		if !knownChecks[name] {
			return nil, &ParseError{Pos: ident.pos, Message: fmt.Sprintf("unknown check %q", ident.text)}
		}
		return &CheckExpr{Name: name}, nil
	}
}

func (p *parser) parseArgs() ([]string, error) {
	var args []string
	for {
		tok := p.next()
		switch tok.kind {
		case tokenWord, tokenString:
			args = append(args, tok.text)
		default:
			return nil, &ParseError{Pos: tok.pos, Message: fmt.Sprintf("expected an argument, got %s", tok.kind)}
		}
		sep := p.next()
		switch sep.kind {
		case tokenComma:
			continue
		case tokenRParen:
			return args, nil
		default:
			return nil, &ParseError{Pos: sep.pos, Message: "missing ')'"}
		}
	}
}

func (p *parser) parseThreshold(ident token, subject string) (Expr, error) {
	fields, ok := thresholdFields[subject]
	if !ok {
		return nil, &ParseError{Pos: ident.pos, Message: fmt.Sprintf("unknown threshold subject %q", ident.text)}
	}
	p.next() // consume '['

	fieldTok := p.next()
	if fieldTok.kind != tokenWord {
		return nil, &ParseError{Pos: fieldTok.pos, Message: "expected a field name inside '[]'"}
	}
	field := strings.ToLower(fieldTok.text)
	if !fields[field] {
		return nil, &ParseError{Pos: fieldTok.pos, Message: fmt.Sprintf("unknown field %q for %s", fieldTok.text, subject)}
	}
	if closing := p.next(); closing.kind != tokenRBracket {
		return nil, &ParseError{Pos: closing.pos, Message: "missing ']'"}
	}

	opTok := p.next()
	if opTok.kind != tokenOp {
		return nil, &ParseError{Pos: opTok.pos, Message: "expected a comparison operator"}
	}
	numTok := p.next()
	if numTok.kind != tokenWord {
		return nil, &ParseError{Pos: numTok.pos, Message: "expected a number"}
	}
	value, err := strconv.ParseFloat(numTok.text, 64)
	if err != nil {
		return nil, &ParseError{Pos: numTok.pos, Message: fmt.Sprintf("invalid number %q", numTok.text)}
	}

	return &ThresholdExpr{Subject: subject, Field: field, Op: opTok.text, Value: value}, nil
}
