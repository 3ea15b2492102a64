package ingestion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

var recordPattern = regexp.MustCompile(`Id:(\d*?),CreationDate:(.*?),Score:(\d*?),FilePath:(.*?),Body:(.*)`)

const maxFilePathLength = 4096

// ParseRecord extracts a Record from a flattened line. Lines that do not
// match the record grammar, or whose fields are unusable, fail with an error
// wrapping ErrMalformedRecord.
func ParseRecord(line string) (Record, error) {
	m := recordPattern.FindStringSubmatch(line)
	if m == nil {
		return Record{}, fmt.Errorf("parsing record: %w: line does not match record grammar", apperrors.ErrMalformedRecord)
	}

	errs := make(map[string]string)
	rec := Record{
		CreationDate: m[2],
		FilePath:     strings.TrimSpace(m[4]),
		Body:         m[5],
	}

	id, err := strconv.Atoi(m[1])
	if err != nil {
		errs["id"] = "id must be an integer"
	}
	rec.ID = id

	if m[3] != "" {
		score, err := strconv.Atoi(m[3])
		if err != nil {
			errs["score"] = "score must be an integer"
		}
		rec.Score = score
	}

	if rec.FilePath == "" {
		errs["file_path"] = "file path is required"
	} else if len(rec.FilePath) > maxFilePathLength {
		errs["file_path"] = fmt.Sprintf("file path must be at most %d characters", maxFilePathLength)
	}

	if len(errs) > 0 {
		return Record{}, fmt.Errorf("parsing record: %w: %w", apperrors.ErrMalformedRecord, &RecordError{Fields: errs})
	}
	return rec, nil
}
