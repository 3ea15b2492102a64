package index

// Document is a parsed corpus record. Content starts as raw words and is
// replaced in place by tokenized terms.
type Document struct {
	ID      int
	Content []string
}

// Postings maps an internal document ID to the weight of a term in it. While
// a batch is being indexed the weight is a raw occurrence count; after
// ComputeLNC it is the normalized lnc weight.
type Postings map[int]float64

// TermPostings is the payload of a term partition.
type TermPostings map[string]Postings

// DocLocation records where a document came from.
type DocLocation struct {
	FilePath   string `json:"file_path"`
	OriginalID int    `json:"original_id"`
}

// DocMap is the payload of a docMap partition.
type DocMap map[int]DocLocation

func (p Postings) clone() Postings {
	out := make(Postings, len(p))
	for docID, w := range p {
		out[docID] = w
	}
	return out
}
