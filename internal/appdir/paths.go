package appdir

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync")
}

// SocketPath returns the daemon's Unix domain socket path.
func SocketPath(base string) string {
	return filepath.Join(base, "daemon.sock")
}

// LockPath returns the daemon lock file path.
func LockPath(base string) string {
	return filepath.Join(base, "LOCK")
}

// DBPath returns the cache database path.
func DBPath(base string) string {
	return filepath.Join(base, "cache.db")
}

// LogDir returns the log directory.
func LogDir(base string) string {
	return filepath.Join(base, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(base string) string {
	return filepath.Join(LogDir(base), "chatsyncd.log")
}

// ConfigPath returns the config file path.
func ConfigPath(base string) string {
	return filepath.Join(base, "config.toml")
}

// EnsureDirs creates the data directory tree with owner-only permissions.
func EnsureDirs(base string) error {
	for _, d := range []string{base, LogDir(base)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
