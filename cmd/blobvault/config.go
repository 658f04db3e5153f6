package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/blobvault/blobvault"
)

// cliConfig is the on-disk CLI configuration, read from
// ~/.blobvault/config.toml unless --config points elsewhere
type cliConfig struct {
	Dir           string `toml:"dir"`
	ContainerSize int64  `toml:"container_size"`
	Cipher        string `toml:"cipher"`
	GridSize      int    `toml:"grid_size"`
	RelayURL      string `toml:"relay_url"`
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blobvault"
	}
	return filepath.Join(home, ".blobvault")
}

func defaultConfig() cliConfig {
	return cliConfig{
		Dir:           defaultConfigDir(),
		ContainerSize: 1 << 30,
		Cipher:        "auto",
		GridSize:      3,
	}
}

func loadConfig(path string) (cliConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		path = filepath.Join(defaultConfigDir(), "config.toml")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(path string, cfg cliConfig) error {
	if path == "" {
		path = filepath.Join(defaultConfigDir(), "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func parseCipher(name string) (blobvault.CipherSuite, error) {
	switch name {
	case "", "auto":
		return blobvault.CipherAuto, nil
	case "aes-256-gcm":
		return blobvault.CipherAES256GCM, nil
	case "chacha20-poly1305":
		return blobvault.CipherChaCha20Poly1305, nil
	default:
		return blobvault.CipherAuto, fmt.Errorf("unknown cipher %q", name)
	}
}
