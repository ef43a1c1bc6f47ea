package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// decodeResponse parses a JSON response and decodes its data into out.
func decodeResponse(t *testing.T, output string, out any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &raw), output)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

const baseScript = `
blocks:
  - ops:
      - account_create: {new_account_name: alice, vesting_shares: 1000000000, balance: "10.000 GBG"}
      - account_create: {new_account_name: bob, vesting_shares: 1000000000, balance: "10.000 GBG"}
  - ops:
      - comment: {parent_permlink: go, author: alice, permlink: a1, title: Hello, body: world}
  - ops:
      - vote: {voter: bob, author: alice, permlink: a1, weight: 10000}
  - ops:
      - vote: {voter: mallory, author: alice, permlink: a1, weight: 10000}
`

// seedJournal applies baseScript to a new journal and returns its path.
func seedJournal(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := writeFile(t, dir, "base.yaml", baseScript)
	path := filepath.Join(dir, "chain.db")
	_, err := execute(t, "apply", "--journal", path, script)
	require.NoError(t, err)
	return path
}
