package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix environment-variable overrides must carry, e.g.
// AGENTKERNEL_MODEL overrides "model".
const EnvPrefix = "AGENTKERNEL_"

// Load reads path (YAML) via koanf's file provider, layers environment
// overrides on top, decodes into Config, applies defaults, and validates.
// Mirrors the teacher's loader pipeline (pkg/config/loader.go): read ->
// parse -> env-expand -> decode -> defaults -> validate.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: failed to load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envTransform maps a fixed set of top-level environment keys onto the
// koanf keys used by Config's `koanf` tags (see envKeyMap:
// AGENTKERNEL_MODEL, AGENTKERNEL_BASEURL, AGENTKERNEL_LOGLEVEL,
// AGENTKERNEL_DATADIR). Any other AGENTKERNEL_ variable, including ones
// for nested keys such as executionPreferences.riskTolerance, is ignored.
func envTransform(key, value string) (string, interface{}) {
	mapped, ok := envKeyMap[key]
	if !ok {
		return "", nil
	}
	return mapped, value
}

var envKeyMap = map[string]string{
	"AGENTKERNEL_MODEL":    "model",
	"AGENTKERNEL_BASEURL":  "baseUrl",
	"AGENTKERNEL_LOGLEVEL": "logLevel",
	"AGENTKERNEL_DATADIR":  "dataDir",
}
