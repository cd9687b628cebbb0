package config

import (
	"bytes"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// StaticConfig is the configuration of the server, read once at startup and again
// whenever the configuration file changes.
type StaticConfig struct {
	LogLevel       int    `toml:"log_level,omitempty"`
	KialiServerURL string `toml:"kiali_server_url,omitempty"`
	KialiInsecure  bool   `toml:"kiali_insecure,omitempty"`
	// RequireOAuth rejects Kiali calls that carry no Authorization header.
	RequireOAuth bool `toml:"require_oauth,omitempty"`
	// KubeConfig is the kubeconfig used to read health annotations from live objects.
	KubeConfig     string `toml:"kubeconfig,omitempty"`
	MetricsAddress string `toml:"metrics_address,omitempty"`
	// UseServerHealthConfig replaces HealthConfig with the one the Kiali server reports.
	UseServerHealthConfig bool         `toml:"use_server_health_config,omitempty"`
	HealthConfig          HealthConfig `toml:"health_config"`
}

// HealthConfig mirrors the healthConfig section of the Kiali server configuration.
type HealthConfig struct {
	Rate []Rate `toml:"rate" json:"rate"`
}

// Rate scopes tolerances to resources. Empty patterns match everything.
type Rate struct {
	Namespace string      `toml:"namespace,omitempty" json:"namespace,omitempty"`
	Kind      string      `toml:"kind,omitempty" json:"kind,omitempty"`
	Name      string      `toml:"name,omitempty" json:"name,omitempty"`
	Tolerance []Tolerance `toml:"tolerance" json:"tolerance"`
}

// Tolerance is a single rate tolerance. Thresholds are percentages.
type Tolerance struct {
	Code      string  `toml:"code" json:"code"`
	Degraded  float64 `toml:"degraded" json:"degraded"`
	Failure   float64 `toml:"failure" json:"failure"`
	Protocol  string  `toml:"protocol,omitempty" json:"protocol,omitempty"`
	Direction string  `toml:"direction,omitempty" json:"direction,omitempty"`
}

// DefaultHealthConfig is the health configuration shipped with Kiali.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Rate: []Rate{{
			Namespace: ".*",
			Kind:      ".*",
			Name:      ".*",
			Tolerance: []Tolerance{
				{Code: `^5\d\d$`, Protocol: "http", Direction: ".*", Degraded: 0, Failure: 10},
				{Code: `^4\d\d$`, Protocol: "http", Direction: ".*", Degraded: 10, Failure: 20},
				{Code: `^[1-9]$|^1[0-6]$`, Protocol: "grpc", Direction: ".*", Degraded: 0, Failure: 10},
				{Code: `^-$`, Protocol: "http|grpc", Direction: ".*", Degraded: 0, Failure: 10},
			},
		}},
	}
}

// Default returns the configuration used when no file is given.
func Default() *StaticConfig {
	return &StaticConfig{
		LogLevel:     0,
		HealthConfig: DefaultHealthConfig(),
	}
}

// Read reads the TOML configuration at path from fs.
func Read(fs afero.Fs, path string) (*StaticConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration %s", path)
	}
	cfg, err := ReadToml(data)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration %s", path)
	}
	return cfg, nil
}

// ReadToml decodes a TOML configuration on top of the defaults. A configuration
// declaring no rate entries keeps the default health configuration.
func ReadToml(data []byte) (*StaticConfig, error) {
	cfg := Default()
	cfg.HealthConfig = HealthConfig{}
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "decoding toml")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown configuration keys: %v", undecoded)
	}
	if len(cfg.HealthConfig.Rate) == 0 {
		cfg.HealthConfig = DefaultHealthConfig()
	}
	return cfg, nil
}
