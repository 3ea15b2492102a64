// Package ingestion turns a raw corpus into document batches for the index
// builder. A RecordSource yields flattened record lines, the Producer groups
// them into memory-sized batches, and the CorpusReader parses each batch into
// documents while recording where every document came from.
package ingestion

import (
	"fmt"
	"sort"
	"strings"
)

// Record is one corpus entry in its flattened line form:
//
//	Id:<int>,CreationDate:<text>,Score:<int>,FilePath:<text>,Body:<text>
type Record struct {
	ID           int
	CreationDate string
	Score        int
	FilePath     string
	Body         string
}

// String renders the record in the flattened line form.
func (r Record) String() string {
	return fmt.Sprintf("Id:%d,CreationDate:%s,Score:%d,FilePath:%s,Body:%s",
		r.ID, r.CreationDate, r.Score, r.FilePath, r.Body)
}

// RecordError holds per-field parse failures for one line.
type RecordError struct {
	Fields map[string]string
}

func (e *RecordError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
