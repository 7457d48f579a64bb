// Package config loads the daemon configuration using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level daemon configuration. Maps to the
// `hwoffload:` root key in YAML; env vars use the HWOFFLOAD_ prefix
// (e.g. HWOFFLOAD_METRICS_LISTEN).
type Config struct {
	Driver  string        `mapstructure:"driver"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Pools   PoolsConfig   `mapstructure:"pools"`
	Ports   []PortConfig  `mapstructure:"ports"`
}

// LogConfig selects logging verbosity.
type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// PoolsConfig bounds the id pools.
type PoolsConfig struct {
	OuterIDMax uint32 `mapstructure:"outer_id_max"`
	TableIDMax uint32 `mapstructure:"table_id_max"`
}

// PortConfig describes one datapath port to register at startup.
type PortConfig struct {
	Name   string `mapstructure:"name"`
	Kind   string `mapstructure:"kind"`
	Port   uint32 `mapstructure:"port"`
	Queues int    `mapstructure:"queues"`
	HWPort uint16 `mapstructure:"hw_port"`
	Uplink bool   `mapstructure:"uplink"`
}

type configRoot struct {
	HWOffload Config `mapstructure:"hwoffload"`
}

// Load reads the configuration file at path. An empty path yields the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg := root.HWOffload

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hwoffload.driver", "fake")
	v.SetDefault("hwoffload.log.debug", false)
	v.SetDefault("hwoffload.metrics.enabled", true)
	v.SetDefault("hwoffload.metrics.listen", ":9477")
	v.SetDefault("hwoffload.metrics.path", "/metrics")
}

func (c *Config) validate() error {
	seen := make(map[uint32]string)
	for _, p := range c.Ports {
		if p.Name == "" {
			return fmt.Errorf("port %d has no name", p.Port)
		}
		switch p.Kind {
		case "dpdk", "vxlan":
		default:
			return fmt.Errorf("port %s: unknown kind %q", p.Name, p.Kind)
		}
		if other, dup := seen[p.Port]; dup {
			return fmt.Errorf("ports %s and %s share datapath port %d", other, p.Name, p.Port)
		}
		seen[p.Port] = p.Name
	}
	return nil
}
