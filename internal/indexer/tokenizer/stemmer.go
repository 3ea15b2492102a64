package tokenizer

import "github.com/kljensen/snowball/english"

type Stemmer interface {
	Stem(word string) string
}

type NoopStemmer struct{}

func (NoopStemmer) Stem(word string) string { return word }

// PorterStemmer applies the English (Porter2) snowball stemmer. Stop-word
// handling is left to the Filter.
type PorterStemmer struct{}

func (PorterStemmer) Stem(word string) string { return english.Stem(word, true) }
