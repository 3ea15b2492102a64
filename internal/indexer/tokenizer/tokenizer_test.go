package tokenizer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

// suffixStemmer strips a trailing "s" so expectations stay readable.
type suffixStemmer struct{}

func (suffixStemmer) Stem(w string) string { return strings.TrimSuffix(w, "s") }

func TestTokenizeFiltersAndStems(t *testing.T) {
	tok := New(NewStopWords("the", "and"), suffixStemmer{})

	got := tok.Tokenize([]string{"The", "Dogs", "and", "a", "cats,", "x1", "dog-house"})
	require.Equal(t, []string{"dog", "cat", "x1", "dog", "house"}, got)
}

func TestTokenizeDropsNonASCII(t *testing.T) {
	tok := New(nil, nil)
	require.Equal(t, []string{"caf", "ok"}, tok.Tokenize([]string{"café", "ok"}))
	require.Empty(t, tok.Tokenize([]string{"日本語", "!!"}))
}

func TestTokenizeQueryDistinctPairs(t *testing.T) {
	tok := New(DefaultStopWords(), suffixStemmer{})

	got := tok.TokenizeQuery("Cats and cat OR Fish fish")
	require.Equal(t, []QueryTerm{
		{Raw: "cats", Term: "cat"},
		{Raw: "fish", Term: "fish"},
	}, got)
	require.Empty(t, tok.TokenizeQuery("the a"))
}

func TestTokenizeBatch(t *testing.T) {
	tok := New(DefaultStopWords(), PorterStemmer{})
	docs := []index.Document{
		{ID: 1, Content: strings.Fields("the dogs were running")},
		{ID: 2, Content: strings.Fields("a cat")},
		{ID: 3, Content: nil},
	}
	require.NoError(t, tok.TokenizeBatch(context.Background(), docs, 2))
	require.Equal(t, []string{"dog", "run"}, docs[0].Content)
	require.Equal(t, []string{"cat"}, docs[1].Content)
	require.Empty(t, docs[2].Content)
}

func TestTokenizeBatchRepeatsOnOneContext(t *testing.T) {
	tok := New(nil, nil)
	ctx := context.Background()
	for batch := 0; batch < 3; batch++ {
		docs := make([]index.Document, 50)
		for i := range docs {
			docs[i] = index.Document{ID: batch*50 + i, Content: []string{"Word"}}
		}
		require.NoError(t, tok.TokenizeBatch(ctx, docs, 1))
		require.NoError(t, ctx.Err())
		for _, d := range docs {
			require.Equal(t, []string{"word"}, d.Content)
		}
	}
}

func TestTokenizeBatchCancelled(t *testing.T) {
	tok := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tok.TokenizeBatch(ctx, []index.Document{{ID: 1, Content: []string{"x"}}}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadStopWords(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "stop.txt")
	require.NoError(t, os.WriteFile(txt, []byte("The\n  and \n\nof\n"), 0o644))
	js := filepath.Join(dir, "stop.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"list": ["The", "and"]}`), 0o644))

	sw, err := LoadStopWords(txt)
	require.NoError(t, err)
	require.Equal(t, NewStopWords("the", "and", "of"), sw)

	sw, err = LoadStopWords(js)
	require.NoError(t, err)
	require.False(t, sw.Keep("the"))
	require.True(t, sw.Keep("dog"))
}

func TestLoadStopWordsErrorsAreConfiguration(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "stop.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"list": [`), 0o644))

	for _, path := range []string{
		filepath.Join(dir, "missing.txt"),
		bad,
		filepath.Join(dir, "stop.yaml"),
	} {
		_, err := LoadStopWords(path)
		require.ErrorIs(t, err, apperrors.ErrConfiguration, path)
	}
}

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"long": strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. These systems combine tokenization, stemming, and stop word
        removal to normalize text into searchable terms. The inverted index maps each
        term to the documents containing it. `, 20),
}

func BenchmarkTokenizeText(b *testing.B) {
	tok := New(DefaultStopWords(), PorterStemmer{})
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.TokenizeText(text)
			}
		})
	}
}
