package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

// RecordSource yields flattened record lines one at a time. Next returns
// io.EOF once the corpus is exhausted.
type RecordSource interface {
	Next(ctx context.Context) (string, error)
}

var requiredColumns = []string{"Id", "CreationDate", "Score", "Body"}

// CSVSource reads every *.csv file of a directory in name order. Each file
// must be RFC 4180 with a header row naming at least Id, CreationDate, Score
// and Body. A file that fails to parse is abandoned at the failing row and
// reading continues with the next file.
type CSVSource struct {
	files  []string
	next   int
	path   string
	file   *os.File
	reader *csv.Reader
	cols   map[string]int
	logger *slog.Logger
}

func NewCSVSource(dir string) (*CSVSource, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("listing corpus directory %s: %w: %w", dir, apperrors.ErrConfiguration, err)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("opening corpus directory %s: %w: %w", dir, apperrors.ErrConfiguration, err)
	}
	sort.Strings(files)
	return &CSVSource{
		files:  files,
		logger: slog.Default().With("component", "csv-source"),
	}, nil
}

// Files returns the corpus files in reading order.
func (s *CSVSource) Files() []string { return s.files }

func (s *CSVSource) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.reader == nil {
			if !s.openNext() {
				return "", io.EOF
			}
		}

		row, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			s.closeCurrent()
			continue
		}
		if err != nil {
			s.logger.Warn("skipping rest of malformed corpus file", "file", s.path, "error", err)
			s.closeCurrent()
			continue
		}
		return s.flatten(row), nil
	}
}

// Close releases the file currently being read.
func (s *CSVSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.reader = nil, nil
	return err
}

func (s *CSVSource) openNext() bool {
	for s.next < len(s.files) {
		path := s.files[s.next]
		s.next++

		f, err := os.Open(path)
		if err != nil {
			s.logger.Error("failed to open corpus file", "file", path, "error", err)
			continue
		}
		r := csv.NewReader(f)
		r.ReuseRecord = true
		header, err := r.Read()
		if err != nil {
			s.logger.Warn("skipping corpus file without header", "file", path, "error", err)
			f.Close()
			continue
		}
		cols := make(map[string]int, len(header))
		for i, name := range header {
			cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
		}
		if missing := missingColumns(cols); len(missing) > 0 {
			s.logger.Warn("skipping corpus file with unexpected header", "file", path, "missing", missing)
			f.Close()
			continue
		}

		s.path, s.file, s.reader, s.cols = path, f, r, cols
		s.logger.Info("reading corpus file", "file", path)
		return true
	}
	return false
}

func (s *CSVSource) closeCurrent() {
	if err := s.Close(); err != nil {
		s.logger.Warn("failed to close corpus file", "file", s.path, "error", err)
	}
}

func (s *CSVSource) flatten(row []string) string {
	body := strings.NewReplacer("\n", "", "\r", "").Replace(row[s.cols["Body"]])
	var sb strings.Builder
	sb.Grow(len(body) + len(s.path) + 64)
	sb.WriteString("Id:")
	sb.WriteString(row[s.cols["Id"]])
	sb.WriteString(",CreationDate:")
	sb.WriteString(row[s.cols["CreationDate"]])
	sb.WriteString(",Score:")
	sb.WriteString(row[s.cols["Score"]])
	sb.WriteString(",FilePath:")
	sb.WriteString(s.path)
	sb.WriteString(",Body:")
	sb.WriteString(body)
	return sb.String()
}

func missingColumns(cols map[string]int) []string {
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
