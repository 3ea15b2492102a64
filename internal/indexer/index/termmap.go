package index

import (
	"math"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

type shard struct {
	mu    sync.Mutex
	terms map[string]Postings
}

// TermMap is the in-memory term -> docID -> weight table. The term space is
// striped across lock shards so that concurrent writers touching different
// terms do not contend; there is no ordering guarantee across terms.
type TermMap struct {
	shards [shardCount]*shard

	// accumulator holds the sum of squared log weights per document for the
	// current batch. A document present here has already been normalized.
	accMu       sync.Mutex
	accumulator map[int]float64
}

func NewTermMap() *TermMap {
	m := &TermMap{accumulator: make(map[int]float64)}
	for i := range m.shards {
		m.shards[i] = &shard{terms: make(map[string]Postings)}
	}
	return m
}

func (m *TermMap) shardFor(term string) *shard {
	return m.shards[xxhash.Sum64String(term)&(shardCount-1)]
}

// Add increments the occurrence count of term in docID.
func (m *TermMap) Add(term string, docID int) {
	s := m.shardFor(term)
	s.mu.Lock()
	p, ok := s.terms[term]
	if !ok {
		p = make(Postings)
		s.terms[term] = p
	}
	p[docID]++
	s.mu.Unlock()
}

func (m *TermMap) AddAll(terms []string, docID int) {
	for _, term := range terms {
		m.Add(term, docID)
	}
}

// ComputeLNC converts the raw counts of docID into length-normalized log
// weights: each count c becomes (1+log10 c)/sqrt(sum of squares). A document
// already normalized in the current batch is left untouched.
func (m *TermMap) ComputeLNC(terms []string, docID int) {
	m.accMu.Lock()
	if _, done := m.accumulator[docID]; done {
		m.accMu.Unlock()
		return
	}
	m.accumulator[docID] = 0
	m.accMu.Unlock()

	distinct := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		distinct = append(distinct, term)
	}

	var sum float64
	for _, term := range distinct {
		s := m.shardFor(term)
		s.mu.Lock()
		if p, ok := s.terms[term]; ok {
			if count, ok := p[docID]; ok && count > 0 {
				w := 1 + math.Log10(count)
				p[docID] = w
				sum += w * w
			}
		}
		s.mu.Unlock()
	}

	m.accMu.Lock()
	m.accumulator[docID] = sum
	m.accMu.Unlock()

	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for _, term := range distinct {
		s := m.shardFor(term)
		s.mu.Lock()
		if p, ok := s.terms[term]; ok {
			if w, ok := p[docID]; ok {
				p[docID] = w / norm
			}
		}
		s.mu.Unlock()
	}
}

// ResetAccumulator forgets per-document normalization state. Called once
// per indexed batch.
func (m *TermMap) ResetAccumulator() {
	m.accMu.Lock()
	m.accumulator = make(map[int]float64)
	m.accMu.Unlock()
}

// PutMaster merges postings into the entry for term, adding weights for
// document IDs already present.
func (m *TermMap) PutMaster(term string, postings Postings) {
	s := m.shardFor(term)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.terms[term]
	if !ok {
		s.terms[term] = postings.clone()
		return
	}
	for docID, w := range postings {
		existing[docID] += w
	}
}

// Get returns a copy of the postings for term.
func (m *TermMap) Get(term string) (Postings, bool) {
	s := m.shardFor(term)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.terms[term]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

func (m *TermMap) Remove(term string) (Postings, bool) {
	s := m.shardFor(term)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.terms[term]
	if ok {
		delete(s.terms, term)
	}
	return p, ok
}

// Take removes the given terms and returns their postings. Terms that are
// not present are skipped.
func (m *TermMap) Take(terms []string) TermPostings {
	out := make(TermPostings, len(terms))
	for _, term := range terms {
		if p, ok := m.Remove(term); ok {
			out[term] = p
		}
	}
	return out
}

// Drain removes and returns every entry.
func (m *TermMap) Drain() TermPostings {
	out := make(TermPostings)
	for _, s := range m.shards {
		s.mu.Lock()
		for term, p := range s.terms {
			out[term] = p
		}
		s.terms = make(map[string]Postings)
		s.mu.Unlock()
	}
	return out
}

// Snapshot returns a deep copy of every entry.
func (m *TermMap) Snapshot() TermPostings {
	out := make(TermPostings)
	for _, s := range m.shards {
		s.mu.Lock()
		for term, p := range s.terms {
			out[term] = p.clone()
		}
		s.mu.Unlock()
	}
	return out
}

// Terms returns the live terms in sorted order.
func (m *TermMap) Terms() []string {
	terms := make([]string, 0, m.Len())
	for _, s := range m.shards {
		s.mu.Lock()
		for term := range s.terms {
			terms = append(terms, term)
		}
		s.mu.Unlock()
	}
	sort.Strings(terms)
	return terms
}

// Len is the number of distinct terms held.
func (m *TermMap) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.terms)
		s.mu.Unlock()
	}
	return n
}

func (m *TermMap) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.terms = make(map[string]Postings)
		s.mu.Unlock()
	}
	m.ResetAccumulator()
}
