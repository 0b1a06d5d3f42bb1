package prefix

import (
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// RepoConfig is one configured package repository as serialized into
// mmpack-config.yaml.
type RepoConfig struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	IndexBranch string `yaml:"index-branch,omitempty"`
}

// Config is the parsed contents of mmpack-config.yaml: the configured repo
// list plus per-prefix behavior overrides.
type Config struct {
	Repositories []RepoConfig `yaml:"repositories"`
	AssumeYes    bool         `yaml:"assume-yes"`
	Debug        bool         `yaml:"debug"`
}

// DefaultConfig returns an empty configuration (no repositories configured
// yet).
func DefaultConfig() *Config {
	return &Config{}
}

// LoadConfig reads a mmpack-config.yaml from path. A missing file yields
// DefaultConfig, matching a freshly created prefix or a user with no
// `~/.config/mmpack/config.yaml`.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, mmerrors.New("prefix.LoadConfig", mmerrors.IO, "", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, mmerrors.New("prefix.LoadConfig", mmerrors.BadFormat, "", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories as needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return mmerrors.New("prefix.SaveConfig", mmerrors.IO, "", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return mmerrors.New("prefix.SaveConfig", mmerrors.Internal, "", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return mmerrors.New("prefix.SaveConfig", mmerrors.IO, "", err)
	}
	return nil
}

// MergedConfig loads the user config and, if present, overlays the
// prefix-local config on top of it field-by-field via mergo: a two-stage
// "load user settings, then apply prefix override" sequence. Repositories
// from the prefix-local file replace (not append to) the user list when
// non-empty, matching mergo's default slice-overwrite behavior; scalar
// fields (AssumeYes, Debug) from the prefix-local file only override when
// explicitly set, per mergo.WithOverride's zero-value-means-unset
// convention.
func MergedConfig(userConfigPath, prefixConfigPath string) (*Config, error) {
	base, err := LoadConfig(userConfigPath)
	if err != nil {
		return nil, err
	}

	override, err := LoadConfig(prefixConfigPath)
	if err != nil {
		return nil, err
	}

	if err := mergo.Merge(base, override, mergo.WithOverride); err != nil {
		return nil, mmerrors.New("prefix.MergedConfig", mmerrors.Internal, "", err)
	}
	return base, nil
}

// UserConfigPath returns the default user-level config path
// ($HOME/.config/mmpack/config.yaml).
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mmpack", "config.yaml")
	}
	return filepath.Join(home, ".config", "mmpack", "config.yaml")
}
