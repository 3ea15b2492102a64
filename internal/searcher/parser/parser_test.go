package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/tokenizer"
)

func TestParseBuildsDistinctTerms(t *testing.T) {
	p := New(tokenizer.New(tokenizer.DefaultStopWords(), tokenizer.PorterStemmer{}))

	plan := p.Parse("Running dogs OR the runner's dog")
	require.Equal(t, "Running dogs OR the runner's dog", plan.RawQuery)
	require.Equal(t, []string{"run", "dog", "runner"}, plan.Keys())
	require.Equal(t, "running", plan.Terms[0].Raw)
}

func TestParseEmptyQuery(t *testing.T) {
	p := New(tokenizer.New(nil, nil))

	require.Empty(t, p.Parse("   ").Terms)
	require.Empty(t, p.Parse("a ! ?").Keys())
}
