package tokenizer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

// Filter decides whether a lower-cased word is indexed.
type Filter interface {
	Keep(word string) bool
}

// NoopFilter keeps every word.
type NoopFilter struct{}

func (NoopFilter) Keep(string) bool { return true }

// StopWords drops the words it contains.
type StopWords map[string]struct{}

func NewStopWords(words ...string) StopWords {
	sw := make(StopWords, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			sw[w] = struct{}{}
		}
	}
	return sw
}

func (s StopWords) Keep(word string) bool {
	_, stop := s[word]
	return !stop
}

// DefaultStopWords is used when no stop-word file is configured.
func DefaultStopWords() StopWords {
	return NewStopWords(
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "or", "that",
		"the", "to", "was", "were", "will", "with", "this", "but", "they",
		"have", "had", "what", "when", "where", "who", "which", "their",
		"if", "each", "do", "not", "no", "so", "can",
	)
}

type stopWordDoc struct {
	List []string `json:"list"`
}

// LoadStopWords reads a stop-word list: one word per line for .txt files,
// {"list": [...]} for .json files. Failures wrap ErrConfiguration.
func LoadStopWords(path string) (StopWords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading stop words %s: %v", apperrors.ErrConfiguration, path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		var doc stopWordDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parsing stop words %s: %v", apperrors.ErrConfiguration, path, err)
		}
		return NewStopWords(doc.List...), nil
	case ".txt":
		var words []string
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			words = append(words, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("%w: scanning stop words %s: %v", apperrors.ErrConfiguration, path, err)
		}
		return NewStopWords(words...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported stop word file %q", apperrors.ErrConfiguration, ext)
	}
}
