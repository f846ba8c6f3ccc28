package query

import (
	"strings"
	"time"
)

// Occur is how a clause takes part in a boolean query.
type Occur int

const (
	// Should clauses are optional; at least one must match when a query has
	// no Must clause.
	Should Occur = iota
	// Must clauses are required.
	Must
	// MustNot clauses exclude matching documents.
	MustNot
)

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Node is a parsed query expression.
type Node interface {
	String() string
	node()
}

// Empty matches nothing. It is the parse of a blank query.
type Empty struct{}

// All matches every document.
type All struct{}

// Term matches a single word. An empty Field searches the default fields.
type Term struct {
	Field string
	Text  string
}

// Phrase matches consecutive words.
type Phrase struct {
	Field string
	Text  string
}

// Prefix matches words beginning with Prefix.
type Prefix struct {
	Field  string
	Prefix string
}

// DateRange matches dates between Start and End. A nil bound is open.
type DateRange struct {
	Field          string
	Start, End     *time.Time
	StartInclusive bool
	EndInclusive   bool
}

// Clause is one member of a Boolean query.
type Clause struct {
	Occur Occur
	Node  Node
}

// Boolean combines clauses.
type Boolean struct {
	Clauses []Clause
}

func (Empty) node()      {}
func (All) node()        {}
func (*Term) node()      {}
func (*Phrase) node()    {}
func (*Prefix) node()    {}
func (*DateRange) node() {}
func (*Boolean) node()   {}

func (Empty) String() string { return "" }

func (All) String() string { return "*" }

func (t *Term) String() string { return fieldPrefix(t.Field) + escapeWord(t.Text) }

func (p *Phrase) String() string { return fieldPrefix(p.Field) + `"` + p.Text + `"` }

func (p *Prefix) String() string { return fieldPrefix(p.Field) + escapeWord(p.Prefix) + "*" }

func (r *DateRange) String() string {
	open, closing := "{", "}"
	if r.StartInclusive {
		open = "["
	}
	if r.EndInclusive {
		closing = "]"
	}
	return fieldPrefix(r.Field) + open + formatBound(r.Start) + " TO " + formatBound(r.End) + closing
}

func (b *Boolean) String() string {
	parts := make([]string, 0, len(b.Clauses))
	for _, c := range b.Clauses {
		s := c.Node.String()
		if inner, ok := c.Node.(*Boolean); ok && len(inner.Clauses) > 0 {
			s = "(" + s + ")"
		}
		parts = append(parts, c.Occur.prefix()+s)
	}
	return strings.Join(parts, " ")
}

func fieldPrefix(field string) string {
	if field == "" {
		return ""
	}
	return field + ":"
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.UTC().Format(time.RFC3339)
}

func escapeWord(s string) string {
	switch s {
	case "AND", "OR", "NOT":
		return `\` + s
	}
	var b strings.Builder
	for i, r := range s {
		if isSpecial(r) || (i == 0 && strings.ContainsRune("+-[{", r)) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSpecial(r rune) bool {
	switch r {
	case '(', ')', '"', ':', '*', '\\':
		return true
	}
	return false
}

// Query is an immutable parsed query.
type Query struct {
	root   Node
	source string
}

// Root returns the top-level expression.
func (q *Query) Root() Node { return q.root }

// Source returns the text the query was parsed from.
func (q *Query) Source() string { return q.source }

// String returns the canonical form of the query.
func (q *Query) String() string { return q.root.String() }
