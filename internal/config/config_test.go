package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(604800), cfg.Chain.CashoutWindow)
	assert.Equal(t, uint64(2_000_000_000_000), cfg.Chain.ContentConstant)
	assert.Equal(t, 6, cfg.Chain.MaxCommentDepth)
	assert.Equal(t, 5, cfg.Tags.TagLimit)
	assert.Equal(t, 32, cfg.Tags.MaxTagLength)
	assert.Equal(t, "null", cfg.Tags.NullAccount)
	assert.Equal(t, "GBG", cfg.Tags.PromoteSymbol)
	assert.Equal(t, int64(10_000_000), cfg.Score.RsharesDivisor)
	assert.Equal(t, int64(480_000), cfg.Score.TrendingDivisor)
	assert.Equal(t, 1000, cfg.Query.MaxLimit)
	assert.Equal(t, "tagstate", cfg.Metrics.Namespace)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse("test.cue", []byte(`
chain: cashout_window: 3600
tags: tag_limit: 3
log: level: "debug"
`))
	require.NoError(t, err)
	assert.Equal(t, int64(3600), cfg.Chain.CashoutWindow)
	assert.Equal(t, 3, cfg.Tags.TagLimit)
	assert.Equal(t, 32, cfg.Tags.MaxTagLength)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", "chain: cashout: 1\n"},
		{"out of range", "query: max_limit: 5000\n"},
		{"bad level", `log: level: "trace"` + "\n"},
		{"bad account", `tags: null_account: "NO"` + "\n"},
		{"syntax", "chain: {\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.src))
			require.Error(t, err)
			var cfgErr *Error
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "tagstate.cue")
	require.NoError(t, os.WriteFile(path, []byte("metrics: namespace: \"golos\"\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "golos", cfg.Metrics.Namespace)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
