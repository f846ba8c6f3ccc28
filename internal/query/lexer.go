package query

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPhrase
	tokField
	tokRange
	tokStar
	tokLParen
	tokRParen
	tokPlus
	tokMinus
	tokAnd
	tokOr
	tokNot
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokWord:
		return "word"
	case tokPhrase:
		return "phrase"
	case tokField:
		return "field"
	case tokRange:
		return "range"
	case tokStar:
		return "'*'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	pos  int

	// prefix is set on a word that ended with an unescaped '*'.
	prefix bool

	// range bounds, set on tokRange
	lo, hi         string
	loIncl, hiIncl bool
}

type lexer struct {
	input  string
	pos    int
	tokens []token
}

// lex splits input into tokens. Byte offsets are kept for error messages.
func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tokEOF {
			return l.tokens, nil
		}
	}
}

func (l *lexer) peekRune(at int) (rune, int) {
	if at >= len(l.input) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(l.input[at:])
}

func (l *lexer) lastKind() tokenKind {
	if len(l.tokens) == 0 {
		return tokEOF
	}
	return l.tokens[len(l.tokens)-1].kind
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) {
		r, size := l.peekRune(l.pos)
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	r, size := l.peekRune(l.pos)
	switch r {
	case '(':
		l.pos += size
		return token{kind: tokLParen, pos: start}, nil
	case ')':
		l.pos += size
		return token{kind: tokRParen, pos: start}, nil
	case '"':
		return l.phrase()
	case '+', '-':
		after, _ := l.peekRune(l.pos + size)
		if l.pos+size >= len(l.input) || unicode.IsSpace(after) || after == ')' {
			return token{}, syntaxError(start, "dangling %q operator", string(r))
		}
		l.pos += size
		if r == '+' {
			return token{kind: tokPlus, pos: start}, nil
		}
		return token{kind: tokMinus, pos: start}, nil
	case '[', '{':
		if l.lastKind() == tokField {
			return l.rangeExpr()
		}
	}
	return l.word()
}

func (l *lexer) phrase() (token, error) {
	start := l.pos
	l.pos++ // opening quote

	var b strings.Builder
	for l.pos < len(l.input) {
		r, size := l.peekRune(l.pos)
		switch r {
		case '\\':
			next, nsize := l.peekRune(l.pos + size)
			if nsize == 0 {
				return token{}, syntaxError(l.pos, "dangling escape")
			}
			b.WriteRune(next)
			l.pos += size + nsize
		case '"':
			l.pos += size
			return token{kind: tokPhrase, text: b.String(), pos: start}, nil
		default:
			b.WriteRune(r)
			l.pos += size
		}
	}
	return token{}, syntaxError(start, "unterminated phrase")
}

func (l *lexer) rangeExpr() (token, error) {
	start := l.pos
	open, _ := l.peekRune(l.pos)
	end := strings.IndexAny(l.input[l.pos+1:], "]}")
	if end < 0 {
		return token{}, syntaxError(start, "unterminated range")
	}
	closeAt := l.pos + 1 + end
	inner := strings.Fields(l.input[l.pos+1 : closeAt])
	if len(inner) != 3 || inner[1] != "TO" {
		return token{}, syntaxError(start, "range must have the form [start TO end]")
	}
	closing := l.input[closeAt]
	l.pos = closeAt + 1

	return token{
		kind:   tokRange,
		pos:    start,
		lo:     inner[0],
		hi:     inner[2],
		loIncl: open == '[',
		hiIncl: closing == ']',
	}, nil
}

func (l *lexer) word() (token, error) {
	start := l.pos

	var b strings.Builder
	escaped := false
	trailingStar := false
	for l.pos < len(l.input) {
		r, size := l.peekRune(l.pos)
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
			break
		}
		trailingStar = false
		switch r {
		case '\\':
			next, nsize := l.peekRune(l.pos + size)
			if nsize == 0 {
				return token{}, syntaxError(l.pos, "dangling escape")
			}
			b.WriteRune(next)
			escaped = true
			l.pos += size + nsize
			continue
		case ':':
			if !escaped && isIdentifier(b.String()) {
				l.pos += size
				return token{kind: tokField, text: b.String(), pos: start}, nil
			}
		case '*':
			trailingStar = true
		}
		b.WriteRune(r)
		l.pos += size
	}

	text := b.String()
	if !escaped {
		switch text {
		case "AND":
			return token{kind: tokAnd, pos: start}, nil
		case "OR":
			return token{kind: tokOr, pos: start}, nil
		case "NOT":
			return token{kind: tokNot, pos: start}, nil
		case "*":
			return token{kind: tokStar, pos: start}, nil
		}
	}
	if trailingStar {
		return token{kind: tokWord, text: strings.TrimSuffix(text, "*"), pos: start, prefix: true}, nil
	}
	return token{kind: tokWord, text: text, pos: start}, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func syntaxError(pos int, format string, args ...any) *rserrors.IndexError {
	return rserrors.Newf(rserrors.ErrCodeInvalidQuery, format, args...).
		WithDetail("position", strconv.Itoa(pos))
}
