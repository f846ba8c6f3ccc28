package query

import (
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/roomsearch/internal/schema"
)

// Compile translates q into a Bleve query over the parser's schema.
func (p *Parser) Compile(q *Query) bquery.Query {
	return p.compile(q.root)
}

func (p *Parser) compile(n Node) bquery.Query {
	switch n := n.(type) {
	case All:
		return bleve.NewMatchAllQuery()
	case *Term:
		return p.perField(n.Field, func(field string) bquery.Query {
			m := bleve.NewMatchQuery(n.Text)
			m.SetField(field)
			// a word the analyzer splits, like "e-mail", needs all its parts
			m.SetOperator(bquery.MatchQueryOperatorAnd)
			return m
		})
	case *Phrase:
		return p.perField(n.Field, func(field string) bquery.Query {
			m := bleve.NewMatchPhraseQuery(n.Text)
			m.SetField(field)
			return m
		})
	case *Prefix:
		return p.perField(n.Field, func(field string) bquery.Query {
			m := bleve.NewPrefixQuery(p.normalizePrefix(field, n.Prefix))
			m.SetField(field)
			return m
		})
	case *DateRange:
		return compileDateRange(n)
	case *Boolean:
		return p.compileBoolean(n)
	}
	return bleve.NewMatchNoneQuery()
}

func (p *Parser) compileBoolean(b *Boolean) bquery.Query {
	bq := bleve.NewBooleanQuery()
	for _, c := range b.Clauses {
		child := p.compile(c.Node)
		switch c.Occur {
		case Must:
			bq.AddMust(child)
		case MustNot:
			bq.AddMustNot(child)
		default:
			bq.AddShould(child)
		}
	}
	return bq
}

// perField applies build to field, or to every default search field when
// field is empty.
func (p *Parser) perField(field string, build func(string) bquery.Query) bquery.Query {
	fields := []string{field}
	if field == "" {
		fields = p.schema.DefaultSearchFields()
	}
	if len(fields) == 1 {
		return build(fields[0])
	}

	queries := make([]bquery.Query, 0, len(fields))
	for _, f := range fields {
		queries = append(queries, build(f))
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// normalizePrefix lowercases prefixes for analyzed fields, whose indexed
// terms are lowercase. Keyword fields keep the exact text.
func (p *Parser) normalizePrefix(field, prefix string) string {
	if f, ok := p.schema.Field(field); ok && f.Kind == schema.KindKeyword {
		return prefix
	}
	return strings.ToLower(prefix)
}

func compileDateRange(r *DateRange) bquery.Query {
	if r.Start == nil && r.End == nil {
		return bleve.NewMatchAllQuery()
	}

	var start, end time.Time
	if r.Start != nil {
		start = *r.Start
	}
	if r.End != nil {
		end = *r.End
	}
	startInclusive := r.StartInclusive
	endInclusive := r.EndInclusive

	q := bleve.NewDateRangeInclusiveQuery(start, end, &startInclusive, &endInclusive)
	q.SetField(r.Field)
	return q
}
