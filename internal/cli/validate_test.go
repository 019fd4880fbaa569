package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_ValidDomain(t *testing.T) {
	out, err := execute(t, "validate", "testdata/greenhouse.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, `Domain "greenhouse" is valid`)
	assert.Contains(t, out, "Template Greenhouse")
	assert.Contains(t, out, "temperature")
}

func TestValidate_ValidDomainJSON(t *testing.T) {
	out, err := execute(t, "validate", "testdata/greenhouse.yaml", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, "greenhouse", data["domain"])
}

func TestValidate_InvalidDomain(t *testing.T) {
	out, err := execute(t, "validate", "testdata/bad_domain.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "duplicate scope")
}

func TestValidate_MissingPath(t *testing.T) {
	_, err := execute(t, "validate", "testdata/does_not_exist.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
