package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	envConfigPath = "SABOT_CONFIG_PATH"
	envHome       = "SABOT_HOME"
)

// Paths locates the config file and the data directory a fresh config is
// rooted at.
type Paths struct {
	ConfigFile string
	Home       string
}

// DefaultPaths resolves Paths from SABOT_CONFIG_PATH and SABOT_HOME,
// falling back to ~/.config/sabot.toml and ~/.local/share/sabot.
func DefaultPaths() (Paths, error) {
	p := Paths{
		ConfigFile: os.Getenv(envConfigPath),
		Home:       os.Getenv(envHome),
	}
	if p.ConfigFile != "" && p.Home != "" {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	if p.ConfigFile == "" {
		p.ConfigFile = filepath.Join(home, ".config", "sabot.toml")
	}
	if p.Home == "" {
		p.Home = filepath.Join(home, ".local", "share", "sabot")
	}
	return p, nil
}
