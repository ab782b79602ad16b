package capability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/config"
)

func TestInfoEchoesQueryAgainstDescription(t *testing.T) {
	s := NewStore("Serves education history with pagination.")

	info, err := s.Info(context.Background(), "education lookup", "{user_id}", "{records}")
	require.NoError(t, err)
	require.Contains(t, info, "Serves education history")
	require.Contains(t, info, "education lookup")
	require.Contains(t, info, "{user_id}")
	require.Contains(t, info, "{records}")
}

func TestInfoWithoutDescription(t *testing.T) {
	s := NewStore("")
	info, err := s.Info(context.Background(), "r", "i", "o")
	require.NoError(t, err)
	require.Contains(t, info, "No capability description")
}

func TestLoadStorePrefersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caps.md")
	require.NoError(t, os.WriteFile(path, []byte("file-backed capabilities"), 0o644))

	s, err := LoadStore(config.CapabilityConfig{DescriptionFile: path, Description: "inline"})
	require.NoError(t, err)

	info, err := s.Info(context.Background(), "r", "i", "o")
	require.NoError(t, err)
	require.Contains(t, info, "file-backed capabilities")
	require.NotContains(t, info, "inline")
}

func TestLoadStoreMissingFile(t *testing.T) {
	_, err := LoadStore(config.CapabilityConfig{DescriptionFile: "/does/not/exist"})
	require.Error(t, err)
}
