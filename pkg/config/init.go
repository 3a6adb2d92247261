package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# filebox Configuration File
#
# Every key can be overridden with an environment variable:
#   server.root        -> FILEBOX_SERVER_ROOT
#   logging.level      -> FILEBOX_LOGGING_LEVEL
#
# Static users need a bcrypt hash; generate one with:
#   fileboxd passwd-hash
#
# index.refresh is one of: on_connect, watch, interval, manual
# auth.backend is one of: static, database, chain

`

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	return WriteInitialConfig(path, GetDefaultConfig(), force)
}

// WriteInitialConfig writes cfg to path preceded by a commented header.
func WriteInitialConfig(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
