package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 910, cfg.Indexer.SplitThresholdMB)
	require.Equal(t, 0.60, cfg.Search.TermThreshold)
	require.Equal(t, 2.5, cfg.Search.DocInflation)
	require.Equal(t, 10.0, cfg.Merge.Inflation)
	require.Equal(t, 0.20, cfg.Memory.CalibrationFraction)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "dev.yaml", `
indexer:
  dataDir: /tmp/idx
  workers: 8
memory:
  source: rss
  sampleInterval: 25ms
search:
  termThreshold: 0.7
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/idx", cfg.Indexer.DataDir)
	require.Equal(t, 8, cfg.Indexer.Workers)
	require.Equal(t, "rss", cfg.Memory.Source)
	require.Equal(t, 25*time.Millisecond, cfg.Memory.SampleInterval)
	require.Equal(t, 0.7, cfg.Search.TermThreshold)
	// untouched sections keep defaults
	require.Equal(t, 2.0, cfg.Search.TermInflation)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "dev.toml", `
[indexer]
dataDir = "/var/idx"
compression = "zstd"

[merge]
maxSplitLevel = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/idx", cfg.Indexer.DataDir)
	require.Equal(t, "zstd", cfg.Indexer.Compression)
	require.Equal(t, 3, cfg.Merge.MaxSplitLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad source":      "memory:\n  source: swap\n",
		"bad threshold":   "search:\n  docThreshold: 1.5\n",
		"bad stop words":  "indexer:\n  stopWordsPath: words.csv\n",
		"limit over max":  "search:\n  defaultLimit: 500\n",
		"redis no addr":   "redis:\n  enabled: true\n  addr: \"\"\n",
		"bad compression": "indexer:\n  compression: gzip\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", body))
			require.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load(writeFile(t, "cfg.ini", "x=1"))
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AI_INDEXER_DATA_DIR", "/env/idx")
	t.Setenv("AI_MEMORY_CEILING_MB", "512")
	t.Setenv("AI_KAFKA_ENABLED", "true")
	t.Setenv("AI_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/env/idx", cfg.Indexer.DataDir)
	require.Equal(t, 512, cfg.Memory.CeilingMB)
	require.True(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}
