package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
)

func setupInstallTest(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	prev := cfg
	cfg = &config.Config{Server: config.ServerConfig{Port: 8501}}
	t.Cleanup(func() { cfg = prev })

	path, err := desktopEntryPath()
	require.NoError(t, err)
	return path
}

func TestDesktopEntryPath_CreatesDirectory(t *testing.T) {
	path := setupInstallTest(t)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, desktopEntryName, filepath.Base(path))
}

func TestInstallDesktopEntry(t *testing.T) {
	path := setupInstallTest(t)

	require.NoError(t, installDesktopEntry(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(got)
	assert.Contains(t, content, "[Desktop Entry]")
	assert.Contains(t, content, "Name=Cognitive Companion")
	assert.Contains(t, content, "serve --port 8501")
}

func TestInstallDesktopEntry_Idempotent(t *testing.T) {
	path := setupInstallTest(t)

	require.NoError(t, installDesktopEntry(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, installDesktopEntry(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestUninstallDesktopEntry(t *testing.T) {
	path := setupInstallTest(t)

	require.NoError(t, installDesktopEntry(path))
	require.NoError(t, uninstallDesktopEntry(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUninstallDesktopEntry_NotInstalled(t *testing.T) {
	path := setupInstallTest(t)

	assert.NoError(t, uninstallDesktopEntry(path))
}

func TestDesktopEntry_Renders(t *testing.T) {
	t.Parallel()

	entry := desktopEntry("/usr/local/bin/cca", 9000)
	assert.Contains(t, entry, "Exec=/usr/local/bin/cca serve --port 9000\n")
	assert.Contains(t, entry, "Type=Application\n")
	assert.Contains(t, entry, "Terminal=true\n")
}
