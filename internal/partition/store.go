// Package partition persists term partitions, document-location partitions
// and corpus statistics as self-describing files in a single directory.
// Files are written to a temporary name and renamed into place so a reader
// never observes a half-written partition.
package partition

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

// Options configures a Store.
type Options struct {
	// Compress enables zstd for newly written partitions. Reading handles
	// both forms regardless.
	Compress bool
}

// Entry is a listed partition file.
type Entry struct {
	Name Name
	Size int64
}

type Store struct {
	dir      string
	compress bool
	logger   *slog.Logger
}

// Open prepares dir for partition files and removes temporaries left by an
// interrupted write.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating partition directory: %w", err)
	}
	s := &Store{
		dir:      dir,
		compress: opts.Compress,
		logger:   slog.Default().With("component", "partition-store", "dir", dir),
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading partition directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != tmpSuffix {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			s.logger.Warn("failed to remove stale temp file", "file", e.Name(), "error", err)
			continue
		}
		s.logger.Info("removed stale temp file", "file", e.Name())
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Path(n Name) string { return filepath.Join(s.dir, n.String()) }

// List returns the partitions of the given kinds (all kinds when none are
// given), ordered by kind, key and sequence.
func (s *Store) List(kinds ...Kind) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w: %w", apperrors.ErrPartitionIO, err)
	}
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name, ok := Parse(de.Name())
		if !ok || (len(want) > 0 && !want[name.Kind]) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat partition %s: %w: %w", de.Name(), apperrors.ErrPartitionIO, err)
		}
		out = append(out, Entry{Name: name, Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Name, out[j].Name
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Seq < b.Seq
	})
	return out, nil
}

// Stat reports the size of a partition and whether it exists.
func (s *Store) Stat(n Name) (int64, bool, error) {
	info, err := os.Stat(s.Path(n))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat partition %s: %w: %w", n, apperrors.ErrPartitionIO, err)
	}
	return info.Size(), true, nil
}

func (s *Store) Exists(n Name) bool {
	_, ok, err := s.Stat(n)
	return ok && err == nil
}

// Write atomically replaces the partition n with v and returns the number
// of bytes written.
func (s *Store) Write(n Name, v any, entries int) (int64, error) {
	data, err := Encode(v, entries, s.compress)
	if err != nil {
		return 0, fmt.Errorf("encoding partition %s: %w: %w", n, apperrors.ErrPartitionIO, err)
	}
	finalPath := s.Path(n)
	tmpPath := finalPath + tmpSuffix
	if err := writeSync(tmpPath, data); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing partition %s: %w: %w", n, apperrors.ErrPartitionIO, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming partition %s: %w: %w", n, apperrors.ErrPartitionIO, err)
	}
	s.logger.Debug("partition written", "partition", n.String(), "bytes", len(data), "entries", entries)
	return int64(len(data)), nil
}

// Read loads partition n into v.
func (s *Store) Read(n Name, v any) error {
	data, err := os.ReadFile(s.Path(n))
	if err != nil {
		return fmt.Errorf("reading partition %s: %w: %w", n, apperrors.ErrPartitionIO, err)
	}
	if _, err := Decode(data, v); err != nil {
		return fmt.Errorf("decoding partition %s: %w: %w", n, apperrors.ErrPartitionIO, err)
	}
	return nil
}

func (s *Store) WriteTerms(n Name, terms index.TermPostings) (int64, error) {
	return s.Write(n, terms, len(terms))
}

func (s *Store) ReadTerms(n Name) (index.TermPostings, error) {
	terms := make(index.TermPostings)
	if err := s.Read(n, &terms); err != nil {
		return nil, err
	}
	return terms, nil
}

// WriteDocMap stores the locations of the documents up to and including
// ceiling.
func (s *Store) WriteDocMap(ceiling int, docs index.DocMap) (int64, error) {
	return s.Write(DocMap(ceiling), docs, len(docs))
}

func (s *Store) ReadDocMap(n Name) (index.DocMap, error) {
	docs := make(index.DocMap)
	if err := s.Read(n, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Remove deletes partition n. A missing partition is not an error.
func (s *Store) Remove(n Name) error {
	if err := os.Remove(s.Path(n)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing partition %s: %w: %w", n, apperrors.ErrPartitionIO, err)
	}
	return nil
}

// Sequences returns an allocator for partition sequence numbers of kind,
// seeded from the files currently on disk.
func (s *Store) Sequences(kind Kind) (*Sequencer, error) {
	entries, err := s.List(kind)
	if err != nil {
		return nil, err
	}
	seq := &Sequencer{
		kind:   kind,
		counts: make(map[string]int),
		taken:  make(map[Name]struct{}, len(entries)),
	}
	for _, e := range entries {
		seq.counts[e.Name.Key]++
		seq.taken[e.Name] = struct{}{}
	}
	return seq, nil
}

// Sequencer hands out sequence numbers per key. The next number for a key is
// the count of its files, advanced past any number still in use so that an
// existing partition is never overwritten.
type Sequencer struct {
	mu     sync.Mutex
	kind   Kind
	counts map[string]int
	taken  map[Name]struct{}
}

func (q *Sequencer) Next(key string) Name {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := Name{Key: key, Kind: q.kind, Seq: q.counts[key]}
	for {
		if _, used := q.taken[n]; !used {
			break
		}
		n.Seq++
	}
	q.taken[n] = struct{}{}
	q.counts[key]++
	return n
}

func writeSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
