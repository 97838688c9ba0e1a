package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var installUninstall bool

const desktopEntryName = "cognitive-companion.desktop"

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Create a desktop launcher for the server",
	Long:  "Writes a desktop entry that starts `cca serve` on the configured port. Re-running overwrites the entry; --uninstall removes it. The entry is verified on disk before success is reported.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := desktopEntryPath()
		if err != nil {
			return err
		}

		if installUninstall {
			return uninstallDesktopEntry(path)
		}
		return installDesktopEntry(path)
	},
}

// desktopEntryPath resolves ~/.local/share/applications, creating it if
// missing.
func desktopEntryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "resolve home directory")
	}
	dir := filepath.Join(home, ".local", "share", "applications")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "create applications directory")
	}
	return filepath.Join(dir, desktopEntryName), nil
}

// installDesktopEntry writes the entry and reads it back before declaring
// success. Overwriting an existing entry is the intended idempotent path.
func installDesktopEntry(path string) error {
	exe, err := os.Executable()
	if err != nil {
		return eris.Wrap(err, "resolve executable path")
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return eris.Wrap(err, "resolve executable symlinks")
	}

	entry := desktopEntry(exe, cfg.Server.Port)
	if err := os.WriteFile(path, []byte(entry), 0o644); err != nil {
		return eris.Wrap(err, "write desktop entry")
	}

	// Verify the write landed before reporting success.
	got, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "verify desktop entry")
	}
	if string(got) != entry {
		return eris.New("desktop entry verification failed: content mismatch")
	}

	zap.L().Info("desktop entry installed", zap.String("path", path))
	fmt.Printf("Installed launcher: %s\n", path)
	return nil
}

func uninstallDesktopEntry(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No launcher installed.")
			return nil
		}
		return eris.Wrap(err, "remove desktop entry")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return eris.New("desktop entry still present after removal")
	}

	fmt.Printf("Removed launcher: %s\n", path)
	return nil
}

// desktopEntry renders the launcher contents. The executable path is
// absolute so the entry works regardless of PATH.
func desktopEntry(exe string, port int) string {
	var sb strings.Builder
	sb.WriteString("[Desktop Entry]\n")
	sb.WriteString("Type=Application\n")
	sb.WriteString("Name=Cognitive Companion\n")
	sb.WriteString("Comment=Personal memory agent\n")
	fmt.Fprintf(&sb, "Exec=%s serve --port %d\n", exe, port)
	sb.WriteString("Terminal=true\n")
	sb.WriteString("Categories=Utility;\n")
	return sb.String()
}

func init() {
	installCmd.Flags().BoolVar(&installUninstall, "uninstall", false, "remove the desktop launcher")
	rootCmd.AddCommand(installCmd)
}
