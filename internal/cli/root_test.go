package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tagstate", cmd.Use)
	assert.Contains(t, cmd.Long, "tag")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"apply"},
		{"replay"},
		{"test"},
		{"query", "discussions"},
		{"query", "tags"},
		{"query", "tag"},
		{"query", "peers"},
		{"query", "author-tags"},
		{"query", "top-authors"},
		{"query", "comment-tags"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "", config.DefValue)
}

func TestJournalFlagsRequired(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"apply"}, {"replay"}, {"query"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		flags := sub.Flags()
		if path[0] == "query" {
			flags = sub.PersistentFlags()
		}
		f := flags.Lookup("journal")
		require.NotNil(t, f, "%v --journal", path)
		assert.Equal(t, []string{"true"}, f.Annotations["cobra_annotation_bash_completion_one_required_flag"])
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "yaml", "test", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "bad.cue", "query: max_limit: 5000\n")

	_, err := execute(t, "--config", cfg, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestSettingsDefaults(t *testing.T) {
	opts := &RootOptions{}
	assert.Equal(t, 1000, opts.Settings().Query.MaxLimit)
	assert.NotNil(t, opts.Logger())
}
