// Package config loads server defaults from an optional YAML file,
// following the teacher's cmd/warren "apply" command's shape for reading
// and unmarshaling a YAML resource file (os.ReadFile + yaml.Unmarshal
// into a tagged struct) applied here to a small, flat config instead of
// a cluster resource document.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/kvs/pkg/engine"
	"github.com/cuemby/kvs/pkg/kverr"
	"github.com/cuemby/kvs/pkg/log"
)

// Config holds server defaults. CLI flags that were explicitly set by the
// user override the corresponding field after Load returns; fields left
// at their zero value fall back to these file-provided values, which
// themselves fall back to Default().
type Config struct {
	Addr                     string     `yaml:"addr"`
	Engine                   engine.Name `yaml:"engine"`
	CompactionThresholdBytes uint64     `yaml:"compaction_threshold_bytes"`
	LogLevel                 log.Level  `yaml:"log_level"`
}

// Default returns the built-in defaults used when no config file is
// given and no flag overrides a field.
func Default() Config {
	return Config{
		Addr:                     "127.0.0.1:4000",
		Engine:                   engine.KVS,
		CompactionThresholdBytes: 1 << 20,
		LogLevel:                 log.InfoLevel,
	}
}

// Load reads and parses a YAML config file at path, merging its fields
// over Default(). A field absent from the file keeps its default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, kverr.Wrap(kverr.Io, "read config file", err)
	}

	var override struct {
		Addr                     *string      `yaml:"addr"`
		Engine                   *engine.Name `yaml:"engine"`
		CompactionThresholdBytes *uint64      `yaml:"compaction_threshold_bytes"`
		LogLevel                 *log.Level   `yaml:"log_level"`
	}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Config{}, kverr.Wrap(kverr.Codec, "parse config file", err)
	}

	if override.Addr != nil {
		cfg.Addr = *override.Addr
	}
	if override.Engine != nil {
		cfg.Engine = *override.Engine
	}
	if override.CompactionThresholdBytes != nil {
		cfg.CompactionThresholdBytes = *override.CompactionThresholdBytes
	}
	if override.LogLevel != nil {
		cfg.LogLevel = *override.LogLevel
	}

	return cfg, nil
}
