package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.NotEmpty(t, buf.String())
}

func TestDoctorWithConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
providers:
  openai:
    type: openai
    api_key: dummy
models:
  negotiator:
    provider: openai
    model: gpt-4o
    default: true
codegen:
  output_path: ` + filepath.Join(dir, "generated") + `
  language: python
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"doctor", "--config", cfgPath})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Config OK")
	require.DirExists(t, filepath.Join(dir, "generated"))
}

func TestRequesterRequiresPeerDID(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"requester"})

	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "peer-did")
}
