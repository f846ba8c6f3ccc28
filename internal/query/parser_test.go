package query

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/schema"
)

func newTestParser() *Parser {
	return NewParser(schema.New())
}

func TestParse_CanonicalForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single word", "week", "week"},
		{"bare words are alternatives", "whales week", "whales week"},
		{"explicit OR", "whales OR week", "whales week"},
		{"required and excluded", "+whales -dolphins", "+whales -dolphins"},
		{"AND makes both required", "meeting AND week", "+meeting +week"},
		{"AND NOT excludes", "meeting AND NOT week", "+meeting -week"},
		{"NOT clause", "whales NOT dolphins", "whales -dolphins"},
		{"group", "(cats dogs) AND fish", "+(cats dogs) +fish"},
		{"fielded word", "sender:alice", "sender:alice"},
		{"fielded phrase", `body:"next week"`, `body:"next week"`},
		{"phrase", `"next week"`, `"next week"`},
		{"prefix", "wee*", "wee*"},
		{"match all", "*", "*"},
		{"field group", "body:(cats dogs)", "body:cats body:dogs"},
		{"date day", "date:2024-01-01", "date:[2024-01-01T00:00:00Z TO 2024-01-02T00:00:00Z}"},
		{"date second", "date:2024-01-01T10:00:00Z", "date:[2024-01-01T10:00:00Z TO 2024-01-01T10:00:01Z}"},
		{"open range", "date:[2024-01-01 TO *]", "date:[2024-01-01T00:00:00Z TO *]"},
		{"exclusive start", "date:{2024-01-01 TO 2024-02-01]", "date:{2024-01-01T00:00:00Z TO 2024-02-01T00:00:00Z]"},
		{"matrix id is one word", "@alice:example.org", `@alice\:example.org`},
		{"escaped operator is a word", `\AND`, `\AND`},
		{"hyphen inside word", "e-mail", "e-mail"},
		{"blank", "   ", ""},
		{"empty", "", ""},
	}

	p := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
			assert.Equal(t, tt.input, q.Source())
		})
	}
}

func TestParse_CanonicalFormReparses(t *testing.T) {
	// Given: queries whose canonical form uses escapes and groups
	inputs := []string{
		"+(cats dogs) -fish",
		"@alice:example.org",
		`\AND \-x`,
		"date:{2024-01-01 TO *]",
		`sender:"bob smith" wee*`,
	}

	p := newTestParser()
	for _, in := range inputs {
		// When: parsing the canonical form again
		q, err := p.Parse(in)
		require.NoError(t, err, in)
		again, err := p.Parse(q.String())

		// Then: the canonical form is stable
		require.NoError(t, err, q.String())
		assert.Equal(t, q.String(), again.String())
	}
}

func TestParse_Tree(t *testing.T) {
	q, err := newTestParser().Parse("+whales sender:bob -date:[* TO 2020-01-01}")
	require.NoError(t, err)

	b, ok := q.Root().(*Boolean)
	require.True(t, ok)
	require.Len(t, b.Clauses, 3)

	assert.Equal(t, Must, b.Clauses[0].Occur)
	assert.Equal(t, &Term{Text: "whales"}, b.Clauses[0].Node)

	assert.Equal(t, Should, b.Clauses[1].Occur)
	assert.Equal(t, &Term{Field: schema.FieldSender, Text: "bob"}, b.Clauses[1].Node)

	assert.Equal(t, MustNot, b.Clauses[2].Occur)
	r, ok := b.Clauses[2].Node.(*DateRange)
	require.True(t, ok)
	assert.Nil(t, r.Start)
	require.NotNil(t, r.End)
	assert.False(t, r.EndInclusive)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"unclosed group", "(whales", rserrors.ErrCodeInvalidQuery},
		{"open paren only", "(", rserrors.ErrCodeInvalidQuery},
		{"stray close", "whales)", rserrors.ErrCodeInvalidQuery},
		{"empty group", "()", rserrors.ErrCodeInvalidQuery},
		{"trailing AND", "whales AND", rserrors.ErrCodeInvalidQuery},
		{"leading OR", "OR whales", rserrors.ErrCodeInvalidQuery},
		{"double OR", "whales OR OR week", rserrors.ErrCodeInvalidQuery},
		{"lone NOT", "NOT", rserrors.ErrCodeInvalidQuery},
		{"dangling plus", "+", rserrors.ErrCodeInvalidQuery},
		{"dangling minus", "whales -", rserrors.ErrCodeInvalidQuery},
		{"unterminated phrase", `"next week`, rserrors.ErrCodeInvalidQuery},
		{"dangling escape", `whales\`, rserrors.ErrCodeInvalidQuery},
		{"missing field value", "body:", rserrors.ErrCodeInvalidQuery},
		{"range on text field", "body:[a TO b]", rserrors.ErrCodeInvalidQuery},
		{"range without TO", "date:[2024-01-01 2024-02-01]", rserrors.ErrCodeInvalidQuery},
		{"unterminated range", "date:[2024-01-01 TO *", rserrors.ErrCodeInvalidQuery},
		{"invalid date", "date:yesterday", rserrors.ErrCodeInvalidQuery},
		{"date out of range", "date:[1500-01-01 TO *]", rserrors.ErrCodeInvalidQuery},
		{"phrase on date", `date:"2024-01-01"`, rserrors.ErrCodeInvalidQuery},
		{"bare star prefix", `\**`, ""},
		{"unknown field", "color:red", rserrors.ErrCodeUnknownField},
		{"unknown field in group", "whales (mood:happy)", rserrors.ErrCodeUnknownField},
		{"too deep", strings.Repeat("(", maxNestingDepth+1) + "a" + strings.Repeat(")", maxNestingDepth+1), rserrors.ErrCodeInvalidQuery},
	}

	p := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.input)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, rserrors.GetCode(err))
			assert.True(t, errors.Is(err, rserrors.ErrQuery))
		})
	}
}

func TestParse_UnknownFieldNamesField(t *testing.T) {
	_, err := newTestParser().Parse("whales mood:happy")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mood"`)

	var ie *rserrors.IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "mood", ie.Details["field"])
	assert.Equal(t, "7", ie.Details["position"])
}

func TestParse_RejectsOverlongQuery(t *testing.T) {
	p := NewParserWithConfig(schema.New(), Config{MaxQueryLength: 16})

	_, err := p.Parse(strings.Repeat("a", 17))

	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeQueryTooLong, rserrors.GetCode(err))

	_, err = p.Parse(strings.Repeat("a", 16))
	assert.NoError(t, err)
}

func TestParse_CachesSuccessfulParses(t *testing.T) {
	p := newTestParser()

	first, err := p.Parse("whales week")
	require.NoError(t, err)
	second, err := p.Parse("whales week")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, p.CacheLen())

	_, err = p.Parse("(broken")
	require.Error(t, err)
	assert.Equal(t, 1, p.CacheLen())
}

func TestParse_AdversarialInputNeverPanics(t *testing.T) {
	// Given: hand-picked hostile inputs plus random strings over the
	// query alphabet
	inputs := []string{
		"((((", "))))", `"""`, `\\\\`, "+-+-", "NOT NOT NOT", "AND OR NOT",
		"date:[", "date:{ TO }", "body:(", "body:)", ":::", "*:*", "**", "*a*",
		"\x00\xff\xfe", "日本語:テスト", "a:b:c:d", "sender:\"", "-(", "+()",
		"date:[* TO *]", "body:(sender:(date:2024-01-01))",
	}
	alphabet := []rune(`ab :()"+-*\[]{}ANDORTO日` + "\t\x00")
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		n := rng.Intn(24)
		var b strings.Builder
		for j := 0; j < n; j++ {
			b.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		inputs = append(inputs, b.String())
	}

	p := newTestParser()
	for _, in := range inputs {
		// When/Then: parsing and compiling never panic
		assert.NotPanics(t, func() {
			q, err := p.Parse(in)
			if err == nil {
				_ = p.Compile(q)
			}
		}, "input %q", in)
	}
}

func TestNewParserWithConfig_DefaultsNonPositive(t *testing.T) {
	p := NewParserWithConfig(schema.New(), Config{})

	assert.Equal(t, DefaultMaxQueryLength, p.config.MaxQueryLength)
	assert.Equal(t, DefaultCacheSize, p.config.CacheSize)
}
