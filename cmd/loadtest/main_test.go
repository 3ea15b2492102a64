package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, time.Duration(5), percentile(sorted, 50))
	require.Equal(t, time.Duration(10), percentile(sorted, 99))
	require.Equal(t, time.Duration(1), percentile(sorted, 0))
	require.Zero(t, percentile(nil, 50))
}

func TestLoadQueriesSkipsBlankAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.txt")
	require.NoError(t, os.WriteFile(path, []byte("# header\ncat fish\n\n  dog  \n"), 0o644))

	queries, err := loadQueries(path)
	require.NoError(t, err)
	require.Equal(t, []string{"cat fish", "dog"}, queries)

	require.NoError(t, os.WriteFile(path, []byte("# only comments\n"), 0o644))
	_, err = loadQueries(path)
	require.Error(t, err)
}

func TestRunLoadTestCountsCacheHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	stats, err := runLoadTest(context.Background(), Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Limit:       5,
		Queries:     []string{"dog"},
	})
	require.NoError(t, err)
	require.Positive(t, stats.successCount.Load())
	require.Equal(t, stats.successCount.Load(), stats.cacheHits.Load())
}
