package ingestion

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
)

// DocMapStore persists the docID → location map of a batch.
type DocMapStore interface {
	WriteDocMap(ceiling int, docs index.DocMap) (int64, error)
}

// CorpusReader assigns sequential document IDs, starting at zero, to parsed
// records and remembers each document's origin until Save is called.
type CorpusReader struct {
	mu      sync.Mutex
	store   DocMapStore
	count   int
	skipped int
	pending index.DocMap
	logger  *slog.Logger
}

func NewCorpusReader(store DocMapStore) *CorpusReader {
	return &CorpusReader{
		store:   store,
		pending: make(index.DocMap),
		logger:  slog.Default().With("component", "corpus-reader"),
	}
}

// Parse converts a batch of flattened lines into documents whose content is
// the raw, space-separated words of the body. Empty and malformed lines are
// skipped.
func (r *CorpusReader) Parse(lines []string) []index.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := make([]index.Document, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			r.skipped++
			r.logger.Debug("skipping malformed record", "error", err)
			continue
		}
		id := r.count
		r.count++
		r.pending[id] = index.DocLocation{FilePath: rec.FilePath, OriginalID: rec.ID}
		docs = append(docs, index.Document{ID: id, Content: strings.Fields(rec.Body)})
	}
	return docs
}

// Save writes the locations gathered since the previous Save into a docMap
// partition keyed by the current corpus count. It is a no-op when nothing
// new was parsed.
func (r *CorpusReader) Save() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return 0, nil
	}
	size, err := r.store.WriteDocMap(r.count, r.pending)
	if err != nil {
		return 0, fmt.Errorf("saving document map: %w", err)
	}
	r.logger.Debug("document map saved", "ceiling", r.count, "documents", len(r.pending), "bytes", size)
	r.pending = make(index.DocMap)
	return size, nil
}

// CorpusCount is the number of documents parsed so far.
func (r *CorpusReader) CorpusCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Skipped is the number of malformed lines dropped so far.
func (r *CorpusReader) Skipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}
