package partition

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

func TestNameRoundTrip(t *testing.T) {
	names := []Name{
		Partial("a", 0),
		Partial("ab", 12),
		Part("abc", 3),
		Master("z"),
		DocMap(50000),
		Stats(),
	}
	for _, n := range names {
		parsed, ok := Parse(n.String())
		require.True(t, ok, n.String())
		require.Equal(t, n, parsed)
	}
}

func TestParseRejectsForeignFiles(t *testing.T) {
	for _, f := range []string{
		"a.termMap.0.tmp",
		"notes.txt",
		".termMap.master",
		"a.termMap.part.x",
		"a.termMap.-1",
		"abc.docMap",
	} {
		_, ok := Parse(f)
		require.False(t, ok, f)
	}
}

func TestSplitLevel(t *testing.T) {
	require.Equal(t, 1, SplitLevel(910*mib, 0))
	require.Equal(t, 1, SplitLevel(4096*mib, DefaultSplitThreshold))
	require.Equal(t, 2, SplitLevel(910*mib-1, DefaultSplitThreshold))
	require.Equal(t, 2, SplitLevel(512*mib, 0))
	// deterministic
	require.Equal(t, SplitLevel(123, 456), SplitLevel(123, 456))
}

func TestBucketKey(t *testing.T) {
	cases := []struct {
		term  string
		level int
		want  string
	}{
		{"dog", 1, "d"},
		{"dog", 2, "do"},
		{"d", 2, "d"},
		{"Dog", 2, "do"},
		{"a.b", 2, "a"},
		{"4x4", 3, "4x4"},
		{"..", 2, "_"},
		{"dog", 0, "d"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, BucketKey(tc.term, tc.level), "%s@%d", tc.term, tc.level)
	}
}

func TestCodecRejectsCorruption(t *testing.T) {
	data, err := Encode(map[string]int{"a": 1}, 1, false)
	require.NoError(t, err)

	var out map[string]int
	_, err = Decode(data, &out)
	require.NoError(t, err)
	require.Equal(t, 1, out["a"])

	bad := append([]byte(nil), data...)
	bad[len(bad)-1] ^= 0xff
	_, err = Decode(bad, &out)
	require.ErrorContains(t, err, "checksum")

	_, err = Decode(data[:HeaderSize-1], &out)
	require.Error(t, err)

	magic := append([]byte(nil), data...)
	magic[0] = 0
	_, err = Decode(magic, &out)
	require.ErrorContains(t, err, "magic")
}

func TestStoreTermsCompressedAndPlain(t *testing.T) {
	terms := index.TermPostings{
		"dog":  {1: 0.7071067811865475, 2: 0.7929},
		"door": {3: 1},
	}
	for _, compress := range []bool{false, true} {
		s, err := Open(t.TempDir(), Options{Compress: compress})
		require.NoError(t, err)

		size, err := s.WriteTerms(Master("d"), terms)
		require.NoError(t, err)
		require.Positive(t, size)

		got, err := s.ReadTerms(Master("d"))
		require.NoError(t, err)
		require.Equal(t, terms, got)

		onDisk, ok, err := s.Stat(Master("d"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, size, onDisk)
	}
}

func TestStoreDocMap(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	docs := index.DocMap{1: {FilePath: "a.csv", OriginalID: 99}}
	_, err = s.WriteDocMap(1, docs)
	require.NoError(t, err)

	got, err := s.ReadDocMap(DocMap(1))
	require.NoError(t, err)
	require.Equal(t, docs, got)
}

func TestStoreListOrderingAndFilter(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	for _, n := range []Name{Partial("b", 1), Partial("a", 0), Partial("b", 0), Master("a"), DocMap(10)} {
		_, err := s.Write(n, map[string]int{}, 0)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "README"), []byte("x"), 0o644))

	partials, err := s.List(KindPartial)
	require.NoError(t, err)
	require.Equal(t, []Name{Partial("a", 0), Partial("b", 0), Partial("b", 1)}, names(partials))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestOpenSweepsTempFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "a.termMap.0.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("junk"), 0o644))

	_, err := Open(dir, Options{})
	require.NoError(t, err)
	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
}

func TestStoreReadMissingIsPartitionIO(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	_, err = s.ReadTerms(Master("q"))
	require.ErrorIs(t, err, apperrors.ErrPartitionIO)
	require.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, s.Remove(Master("q")))
	require.False(t, s.Exists(Master("q")))
}

func TestSequencerSkipsOccupiedNumbers(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	// sequences 0 and 2 exist; 1 was consumed by an earlier merge
	for _, n := range []Name{Partial("a", 0), Partial("a", 2)} {
		_, err := s.Write(n, map[string]int{}, 0)
		require.NoError(t, err)
	}

	seq, err := s.Sequences(KindPartial)
	require.NoError(t, err)
	require.Equal(t, Partial("a", 3), seq.Next("a"))
	require.Equal(t, Partial("a", 4), seq.Next("a"))
	require.Equal(t, Partial("b", 0), seq.Next("b"))
}

func names(entries []Entry) []Name {
	out := make([]Name, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}
