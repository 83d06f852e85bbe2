package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/anoma/anoma/shared/fileutil"
)

// GlobalFileName is the base-dir-level config file, not tied to any chain.
const GlobalFileName = "global-config.toml"

// GlobalConfig lives directly in the base dir and selects the chain that
// commands operate on when none is given explicitly.
type GlobalConfig struct {
	DefaultChainID ChainID `toml:"default_chain_id" mapstructure:"default_chain_id"`
}

// NewGlobalConfig returns a global config pointing at the given chain.
func NewGlobalConfig(chainID ChainID) *GlobalConfig {
	return &GlobalConfig{DefaultChainID: chainID}
}

// GlobalFilePath returns the path of the global config file.
func GlobalFilePath(baseDir string) string {
	return filepath.Join(baseDir, GlobalFileName)
}

// ReadGlobal loads the global config from the base dir.
func ReadGlobal(baseDir string) (*GlobalConfig, error) {
	filePath := GlobalFilePath(baseDir)
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	var cfg GlobalConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, &DeserializationError{Err: err}
	}
	return &cfg, nil
}

// Write stores the global config in the base dir, replacing any previous
// one.
func (g *GlobalConfig) Write(baseDir string) error {
	if err := fileutil.MkdirAll(baseDir); err != nil {
		return &WriteError{Err: err}
	}
	encoded, err := encodeToml(g)
	if err != nil {
		return err
	}
	if err := os.WriteFile(GlobalFilePath(baseDir), encoded, 0o644); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}
