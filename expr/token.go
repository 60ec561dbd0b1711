package expr

import "fmt"

type tokenType uint8

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenPlaceholder // ?
	tokenLParen
	tokenRParen
	tokenComma
	tokenDot
	tokenOperator // = != < <= > >= <> + - * / % ~
	tokenKeyword  // AND OR NOT IN BETWEEN LIKE IS NULL TRUE FALSE
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenIdent:
		return "identifier"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenPlaceholder:
		return "placeholder"
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	case tokenComma:
		return ","
	case tokenDot:
		return "."
	case tokenOperator:
		return "operator"
	case tokenKeyword:
		return "keyword"
	}
	return "unknown"
}

type token struct {
	typ tokenType
	// literal holds the raw text for idents and numbers, the unquoted
	// content for strings, and the upper-cased spelling for keywords
	// and operators.
	literal string
	pos     int
}

func (t token) String() string {
	if t.typ == tokenEOF {
		return "EOF"
	}
	return fmt.Sprintf("%q", t.literal)
}

// keywords recognized by the lexer. Logical spellings || and && are
// normalized to OR and AND by the scanner.
var keywords = map[string]bool{
	"AND":     true,
	"OR":      true,
	"NOT":     true,
	"IN":      true,
	"BETWEEN": true,
	"LIKE":    true,
	"IS":      true,
	"NULL":    true,
	"TRUE":    true,
	"FALSE":   true,
	"AS":      true,
	"ASC":     true,
	"DESC":    true,
	"DISTINCT": true,
}
