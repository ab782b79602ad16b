package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger, err = NewLogger("info", "json")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger("loud", "console")
	require.Error(t, err)
}

func TestNewWithRotatedFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "agentmesh.log")

	logger, err := New(Options{Level: "info", Format: "json", File: file})
	require.NoError(t, err)

	logger.Info("negotiation started")
	require.NoError(t, logger.Sync())
	require.FileExists(t, file)
}
