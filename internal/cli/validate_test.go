package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidSuites(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "blocks.cue", passingSuite)
	writeSuite(t, dir, "broken.cue", failingSuite)

	out, err := execute(t, nil, "validate", dir)
	require.NoError(t, err)
	assert.Equal(t, "✓ 2 suite(s) valid\n", out)
}

func TestValidateValidSuitesJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, "blocks.cue", passingSuite)

	out, err := execute(t, nil, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"blocks"}, resp.Data.Suites)
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := execute(t, nil, "validate", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := execute(t, nil, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
	assert.Contains(t, out, "no suite files found")
}

func TestValidateInvalidSuites(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
		message string
	}{
		{
			name:    "unknown field",
			content: "name: \"x\"\nretries: 3\ncases: \"M\": {}\n",
			code:    ErrCodeSchema,
			message: "retries",
		},
		{
			name:    "no cases",
			content: "name: \"x\"\n",
			code:    ErrCodeNoCases,
			message: "at least one case",
		},
		{
			name:    "regression without simulate",
			content: "name: \"x\"\ncases: \"M\": {regression: true}\n",
			code:    ErrCodeRegression,
			message: "regression requires simulate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeSuite(t, dir, "bad.cue", tt.content)

			out, err := execute(t, nil, "validate", path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "✗ Validation failed")
			assert.Contains(t, out, tt.code)
			assert.Contains(t, out, tt.message)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "blocks.cue", passingSuite)
	writeSuite(t, dir, "a.cue", "name: \"a\"\n")
	writeSuite(t, dir, "b.cue", "name: \"b\"\ncases: \"M\": {regression: true}\n")

	out, err := execute(t, nil, "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, []string{"blocks"}, resp.Data.Suites)
	require.Len(t, resp.Data.Errors, 2)

	codes := []string{resp.Data.Errors[0].Code, resp.Data.Errors[1].Code}
	assert.ElementsMatch(t, []string{ErrCodeNoCases, ErrCodeRegression}, codes)
	for _, e := range resp.Data.Errors {
		assert.Equal(t, dir, filepath.Dir(e.File))
	}
}
