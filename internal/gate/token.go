package gate

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenWord
	tokenString
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenComma
	tokenOp
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of expression"
	case tokenWord:
		return "identifier"
	case tokenString:
		return "string"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLBracket:
		return "'['"
	case tokenRBracket:
		return "']'"
	case tokenComma:
		return "','"
	case tokenOp:
		return "comparison operator"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// isKeyword reports whether the word is AND, OR or NOT,
// case-insensitively.
func (t token) isKeyword(kw string) bool {
	return t.kind == tokenWord && strings.EqualFold(t.text, kw)
}

// isWordChar accepts identifier and glob characters so that arguments
// like auth-*.json lex as a single word.
func isWordChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '.', c == '*', c == '?', c == '/':
		return true
	}
	return false
}

// lex splits a gate expression into tokens. The only lexical errors are
// unterminated strings and stray characters.
func lex(src string) ([]token, *ParseError) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
		case c == '[':
			tokens = append(tokens, token{tokenLBracket, "[", i})
			i++
		case c == ']':
			tokens = append(tokens, token{tokenRBracket, "]", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokenComma, ",", i})
			i++
		case c == '>' || c == '<' || c == '=' || c == '!':
			start := i
			i++
			if i < len(src) && src[i] == '=' {
				i++
			}
			op := src[start:i]
			if op == "=" || op == "!" {
				return nil, &ParseError{Pos: start, Message: fmt.Sprintf("invalid operator %q", op)}
			}
			tokens = append(tokens, token{tokenOp, op, start})
		case c == '"' || c == '\'':
			quote := c
			start := i
			i++
			for i < len(src) && src[i] != quote {
				i++
			}
			if i >= len(src) {
				return nil, &ParseError{Pos: start, Message: "unterminated string"}
			}
			tokens = append(tokens, token{tokenString, src[start+1 : i], start})
			i++
		case isWordChar(c):
			start := i
			for i < len(src) && isWordChar(src[i]) {
				i++
			}
			tokens = append(tokens, token{tokenWord, src[start:i], start})
		default:
			return nil, &ParseError{Pos: i, Message: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(src)})
	return tokens, nil
}
