package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/tokenizer"
)

// QueryPlan is an OR of distinct terms.
type QueryPlan struct {
	Terms    []tokenizer.QueryTerm
	RawQuery string
}

// Keys returns the index terms of the plan in query order.
func (p *QueryPlan) Keys() []string {
	keys := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		keys[i] = t.Term
	}
	return keys
}

type Parser struct {
	tokenizer *tokenizer.Tokenizer
}

// New returns a Parser that normalizes query words exactly as documents were
// normalized at build time.
func New(tok *tokenizer.Tokenizer) *Parser {
	return &Parser{tokenizer: tok}
}

func (p *Parser) Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]tokenizer.QueryTerm, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	plan.Terms = append(plan.Terms, p.tokenizer.TokenizeQuery(query)...)
	return plan
}
