// Package query parses free-text search queries over the room message schema
// and compiles them into Bleve queries.
//
// Bare words search the schema's default fields and are combined with OR.
// The syntax supports quoted phrases, field:value, +required and -excluded
// clauses, AND/OR/NOT, parentheses, '*' for every document, trailing-'*'
// prefixes and date ranges such as date:[2024-01-01 TO *].
package query

import (
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/schema"
)

// Default parser configuration values.
const (
	DefaultMaxQueryLength = 1024
	DefaultCacheSize      = 1000

	// maxNestingDepth bounds parenthesis nesting so hostile input cannot
	// exhaust the stack.
	maxNestingDepth = 32
)

// Config holds parser configuration.
type Config struct {
	// MaxQueryLength is the longest accepted query in bytes (default: 1024).
	MaxQueryLength int

	// CacheSize is the LRU cache size for parsed queries (default: 1000).
	CacheSize int
}

// DefaultConfig returns the default parser configuration.
func DefaultConfig() Config {
	return Config{
		MaxQueryLength: DefaultMaxQueryLength,
		CacheSize:      DefaultCacheSize,
	}
}

// Parser turns query strings into Query values for one schema.
// It is safe for concurrent use.
type Parser struct {
	schema *schema.RoomMessageSchema
	config Config
	cache  *lru.Cache[string, *Query]
}

// NewParser creates a parser with the default configuration.
func NewParser(s *schema.RoomMessageSchema) *Parser {
	return NewParserWithConfig(s, DefaultConfig())
}

// NewParserWithConfig creates a parser with custom configuration.
// Non-positive values fall back to the defaults.
func NewParserWithConfig(s *schema.RoomMessageSchema, config Config) *Parser {
	if config.MaxQueryLength <= 0 {
		config.MaxQueryLength = DefaultMaxQueryLength
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, *Query](config.CacheSize)
	return &Parser{
		schema: s,
		config: config,
		cache:  cache,
	}
}

// Parse parses input. A blank query parses to one that matches nothing.
// Malformed input fails with ErrCodeInvalidQuery, a reference to a field the
// schema lacks with ErrCodeUnknownField, and oversized input with
// ErrCodeQueryTooLong.
func (p *Parser) Parse(input string) (q *Query, err error) {
	if len(input) > p.config.MaxQueryLength {
		return nil, rserrors.Newf(rserrors.ErrCodeQueryTooLong,
			"query is %d bytes, the limit is %d", len(input), p.config.MaxQueryLength)
	}

	if cached, ok := p.cache.Get(input); ok {
		return cached, nil
	}

	defer func() {
		if r := recover(); r != nil {
			q = nil
			err = rserrors.New(rserrors.ErrCodeInvalidQuery, fmt.Sprintf("query could not be parsed: %v", r), nil)
		}
	}()

	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}

	ps := &parser{schema: p.schema, tokens: tokens}
	root, err := ps.parseQuery()
	if err != nil {
		return nil, err
	}

	q = &Query{root: root, source: input}
	p.cache.Add(input, q)
	return q, nil
}

// CacheLen returns the number of cached parsed queries.
func (p *Parser) CacheLen() int {
	return p.cache.Len()
}

// parser is the recursive-descent state for a single Parse call.
//
//	query       = [disjunction] EOF
//	disjunction = conjunction { ["OR"] conjunction }
//	conjunction = clause { "AND" clause }
//	clause      = ["+" | "-" | "NOT"] primary
//	primary     = "(" disjunction ")" | field ":" value | value
type parser struct {
	schema *schema.RoomMessageSchema
	tokens []token
	pos    int
	depth  int

	// scope is the field applied to bare values inside field:( ... ).
	scope string
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseQuery() (Node, error) {
	if p.peek().kind == tokEOF {
		return Empty{}, nil
	}

	root, err := p.parseDisjunction()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxError(tok.pos, "unexpected %s", tok.kind)
	}
	return root, nil
}

func (p *parser) parseDisjunction() (Node, error) {
	var clauses []Clause
	for {
		c, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)

		switch tok := p.peek(); tok.kind {
		case tokEOF, tokRParen:
			return simplify(clauses), nil
		case tokOr:
			p.advance()
			if err := p.expectOperand(tok); err != nil {
				return nil, err
			}
		}
	}
}

func (p *parser) parseConjunction() (Clause, error) {
	first, err := p.parseClause()
	if err != nil {
		return Clause{}, err
	}
	if p.peek().kind != tokAnd {
		return first, nil
	}

	clauses := []Clause{required(first)}
	for p.peek().kind == tokAnd {
		op := p.advance()
		if err := p.expectOperand(op); err != nil {
			return Clause{}, err
		}
		c, err := p.parseClause()
		if err != nil {
			return Clause{}, err
		}
		clauses = append(clauses, required(c))
	}
	return Clause{Occur: Should, Node: &Boolean{Clauses: clauses}}, nil
}

func (p *parser) parseClause() (Clause, error) {
	occur := Should
	switch tok := p.peek(); tok.kind {
	case tokPlus:
		occur = Must
		p.advance()
	case tokMinus:
		occur = MustNot
		p.advance()
	case tokNot:
		occur = MustNot
		p.advance()
		if err := p.expectOperand(tok); err != nil {
			return Clause{}, err
		}
	}

	n, err := p.parsePrimary()
	if err != nil {
		return Clause{}, err
	}
	return Clause{Occur: occur, Node: n}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokLParen:
		return p.parseGroup(tok)
	case tokField:
		return p.parseField(tok)
	case tokWord, tokPhrase:
		return p.leaf(p.scope, tok)
	case tokStar:
		return All{}, nil
	case tokEOF:
		return nil, syntaxError(tok.pos, "query ends where a term was expected")
	}
	return nil, syntaxError(tok.pos, "unexpected %s", tok.kind)
}

func (p *parser) parseGroup(open token) (Node, error) {
	p.depth++
	if p.depth > maxNestingDepth {
		return nil, syntaxError(open.pos, "parentheses nested deeper than %d", maxNestingDepth)
	}
	if p.peek().kind == tokRParen {
		return nil, syntaxError(open.pos, "empty group")
	}

	n, err := p.parseDisjunction()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokRParen {
		return nil, syntaxError(open.pos, "missing ')' for '('")
	}
	p.advance()
	p.depth--
	return n, nil
}

func (p *parser) parseField(field token) (Node, error) {
	f, ok := p.schema.Field(field.text)
	if !ok {
		return nil, rserrors.UnknownField(field.text).
			WithDetail("position", strconv.Itoa(field.pos))
	}

	tok := p.peek()
	switch tok.kind {
	case tokWord, tokPhrase:
		p.advance()
		return p.leaf(f.Name, tok)
	case tokStar:
		p.advance()
		return All{}, nil
	case tokRange:
		p.advance()
		return p.dateRange(f, tok)
	case tokLParen:
		outer := p.scope
		p.scope = f.Name
		n, err := p.parsePrimary()
		p.scope = outer
		return n, err
	}
	return nil, syntaxError(field.pos, "missing value for field %q", field.text)
}

// leaf builds a word or phrase node for field. An empty field means the
// schema's default search fields.
func (p *parser) leaf(field string, tok token) (Node, error) {
	kind := schema.KindText
	if field != "" {
		f, _ := p.schema.Field(field)
		kind = f.Kind
	}

	if kind == schema.KindDate {
		if tok.kind == tokPhrase || tok.prefix {
			return nil, syntaxError(tok.pos, "field %q only accepts dates and date ranges", field)
		}
		return p.dateTerm(field, tok)
	}

	if tok.kind == tokPhrase {
		if tok.text == "" {
			return Empty{}, nil
		}
		return &Phrase{Field: field, Text: tok.text}, nil
	}
	if tok.prefix {
		if tok.text == "" {
			return nil, syntaxError(tok.pos, "prefix query needs at least one character before '*'")
		}
		return &Prefix{Field: field, Prefix: tok.text}, nil
	}
	return &Term{Field: field, Text: tok.text}, nil
}

// dateTerm matches the whole day for a date, or the whole second for a
// timestamp.
func (p *parser) dateTerm(field string, tok token) (Node, error) {
	start, span, err := parseDate(tok.text)
	if err != nil {
		return nil, syntaxError(tok.pos, "%v", err)
	}
	end := start.Add(span)
	return &DateRange{
		Field:          field,
		Start:          &start,
		End:            &end,
		StartInclusive: true,
		EndInclusive:   false,
	}, nil
}

func (p *parser) dateRange(f schema.Field, tok token) (Node, error) {
	if f.Kind != schema.KindDate {
		return nil, syntaxError(tok.pos, "range queries are only supported on date fields, not %q", f.Name)
	}

	lo, err := parseBound(tok.lo)
	if err != nil {
		return nil, syntaxError(tok.pos, "%v", err)
	}
	hi, err := parseBound(tok.hi)
	if err != nil {
		return nil, syntaxError(tok.pos, "%v", err)
	}

	return &DateRange{
		Field:          f.Name,
		Start:          lo,
		End:            hi,
		StartInclusive: tok.loIncl,
		EndInclusive:   tok.hiIncl,
	}, nil
}

func (p *parser) expectOperand(op token) error {
	switch next := p.peek(); next.kind {
	case tokEOF, tokRParen, tokAnd, tokOr:
		return syntaxError(op.pos, "%s must be followed by a term", op.kind)
	}
	return nil
}

// required turns a clause joined by AND into a Must clause unless it is
// already an exclusion.
func required(c Clause) Clause {
	if c.Occur == MustNot {
		return c
	}
	return Clause{Occur: Must, Node: c.Node}
}

func simplify(clauses []Clause) Node {
	if len(clauses) == 1 && clauses[0].Occur == Should {
		return clauses[0].Node
	}
	return &Boolean{Clauses: clauses}
}

// Dates the engine can index: it stores nanoseconds in an int64.
var (
	minDate = time.Date(1678, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDate = time.Date(2262, 1, 1, 0, 0, 0, 0, time.UTC)
)

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns the instant with the
// span of time it covers.
func parseDate(s string) (time.Time, time.Duration, error) {
	var (
		t    time.Time
		span time.Duration
		err  error
	)
	if t, err = time.Parse(time.DateOnly, s); err == nil {
		span = 24 * time.Hour
	} else if t, err = time.Parse(time.RFC3339, s); err == nil {
		span = time.Second
	} else {
		return time.Time{}, 0, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", s)
	}

	t = t.UTC().Truncate(time.Second)
	if t.Before(minDate) || !t.Before(maxDate) {
		return time.Time{}, 0, fmt.Errorf("date %q is outside the supported range", s)
	}
	return t, span, nil
}

func parseBound(s string) (*time.Time, error) {
	if s == "*" {
		return nil, nil
	}
	t, _, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
