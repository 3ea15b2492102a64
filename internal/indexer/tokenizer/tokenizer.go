// Package tokenizer turns raw document words and queries into index terms.
// Text is lower-cased and split on non-alphanumeric ASCII boundaries; words
// shorter than two characters are dropped, the configured Filter removes
// stop-words, and the configured Stemmer reduces what remains.
package tokenizer

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
)

const minWordLen = 2

// Tokenizer is safe for concurrent use when its Filter and Stemmer are.
type Tokenizer struct {
	filter  Filter
	stemmer Stemmer
}

// New returns a Tokenizer. Nil capabilities fall back to the no-op variants.
func New(filter Filter, stemmer Stemmer) *Tokenizer {
	if filter == nil {
		filter = NoopFilter{}
	}
	if stemmer == nil {
		stemmer = NoopStemmer{}
	}
	return &Tokenizer{filter: filter, stemmer: stemmer}
}

// QueryTerm pairs a query word with the term it is looked up by.
type QueryTerm struct {
	Raw  string `json:"raw"`
	Term string `json:"term"`
}

// Tokenize returns the index terms for words, in order, duplicates kept.
func (t *Tokenizer) Tokenize(words []string) []string {
	terms := make([]string, 0, len(words))
	for _, word := range words {
		for _, w := range splitWord(word) {
			if term, ok := t.term(w); ok {
				terms = append(terms, term)
			}
		}
	}
	return terms
}

// TokenizeText is Tokenize over free text.
func (t *Tokenizer) TokenizeText(text string) []string {
	return t.Tokenize(strings.Fields(text))
}

// TokenizeDocument replaces doc.Content with its terms.
func (t *Tokenizer) TokenizeDocument(doc *index.Document) {
	doc.Content = t.Tokenize(doc.Content)
}

// TokenizeBatch tokenizes docs in place with at most workers goroutines.
func (t *Tokenizer) TokenizeBatch(ctx context.Context, docs []index.Document, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t.TokenizeDocument(&docs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// TokenizeQuery returns the distinct terms of a query with the word each
// came from. The first word producing a term wins.
func (t *Tokenizer) TokenizeQuery(query string) []QueryTerm {
	var out []QueryTerm
	seen := make(map[string]struct{})
	for _, word := range splitWord(query) {
		term, ok := t.term(word)
		if !ok {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, QueryTerm{Raw: strings.ToLower(word), Term: term})
	}
	return out
}

func (t *Tokenizer) term(word string) (string, bool) {
	word = strings.ToLower(word)
	if len(word) < minWordLen || !t.filter.Keep(word) {
		return "", false
	}
	stemmed := t.stemmer.Stem(word)
	if stemmed == "" {
		return "", false
	}
	return stemmed, true
}

func splitWord(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isASCIIAlnum(r)
	})
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
