// Package instance lays out the per-instance directory tree under
// ~/.inventario. Each instance owns one database, socket, lock and log.
package instance

import (
	"os"
	"path/filepath"
)

// EnvHome overrides the base directory.
const EnvHome = "INVENTARIO_HOME"

// BaseDir returns $INVENTARIO_HOME, or ~/.inventario when unset.
func BaseDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".inventario")
}

// Dir returns the instance directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// SocketPath returns the gRPC unix socket path for an instance.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// DBPath returns the inventory database path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "inventario.db")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(Dir(name), "logs", "inventoryd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the instance directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), filepath.Dir(LogPath(name))} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
