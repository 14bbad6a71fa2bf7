package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// ErrConfigFileNotFound is returned by [LoadFile] when path does not exist.
var ErrConfigFileNotFound = errors.New("config file is not found")

// LoadFile overlays the YAML document at path onto cfg. Keys that are
// absent keep their current values; unknown keys are an error so typos
// do not silently fall back to defaults.
func LoadFile(path string, cfg *Config) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w at %s", ErrConfigFileNotFound, path)
		}
		return err
	}
	if err := Unmarshal(buf, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

// Unmarshal overlays a YAML document onto cfg.
func Unmarshal(buf []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Marshal renders cfg as YAML, e.g. for --print-config.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
