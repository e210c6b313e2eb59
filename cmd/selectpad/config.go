package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Config represents the selectpad configuration file
// (~/.config/selectpad/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	Criterion *string  `yaml:"criterion"`
	MaxRows   *int64   `yaml:"max_rows"`
	MaxCols   *int64   `yaml:"max_cols"`
	Threshold *float64 `yaml:"threshold"`
	PadValue  *float64 `yaml:"pad_value"`
	Device    string   `yaml:"device"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "selectpad", "config.yaml")
}

// applyPluginConfig applies config file defaults to the plugin flags that
// were not set explicitly.
func applyPluginConfig(c *cli.Command, cfg Config) {
	if cfg.Criterion != nil && !c.IsSet("criterion") {
		criterion = *cfg.Criterion
	}
	if cfg.MaxRows != nil && !c.IsSet("max-rows") && !c.IsSet("p") {
		maxRows = *cfg.MaxRows
	}
	if cfg.MaxCols != nil && !c.IsSet("max-cols") && !c.IsSet("q") {
		maxCols = *cfg.MaxCols
	}
	if cfg.Threshold != nil && !c.IsSet("threshold") {
		threshold = *cfg.Threshold
	}
	if cfg.PadValue != nil && !c.IsSet("pad-value") {
		padValue = *cfg.PadValue
	}
	if cfg.Device != "" && !c.IsSet("device") {
		deviceName = cfg.Device
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.Device != "" && !c.IsSet("device") {
		deviceName = cfg.Device
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config; a malformed one is logged and ignored.
func LoadConfig(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		klog.Warningf("ignoring config %s: %v", path, err)
		return Config{}
	}
	return cfg
}
