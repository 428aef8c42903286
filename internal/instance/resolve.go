package instance

import "github.com/DarkarBlays/inventario/internal/config"

// DefaultName is used when neither a flag nor the config names an instance.
const DefaultName = "main"

// Resolve picks the active instance: the --instance flag, then
// default_instance from config.toml, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultName
}
