package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/citysense/internal/fusion"
	"github.com/banshee-data/citysense/internal/sensors"
	"github.com/banshee-data/citysense/internal/tunnel"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical node defaults file.
const DefaultConfigPath = "config/node.defaults.json"

// NodeConfig holds every tunable of the sensing loops. Fields are pointers so
// that a partial file only overrides what it names; the Get* methods supply
// the factory value for anything left unset.
type NodeConfig struct {
	// Motion loop
	FilterAlpha         *float64 `json:"filter_alpha,omitempty" yaml:"filter_alpha,omitempty"`
	ShockNoiseThreshold *int     `json:"shock_noise_threshold,omitempty" yaml:"shock_noise_threshold,omitempty"`
	ShockMinorThreshold *int     `json:"shock_minor_threshold,omitempty" yaml:"shock_minor_threshold,omitempty"`
	ShockMajorThreshold *int     `json:"shock_major_threshold,omitempty" yaml:"shock_major_threshold,omitempty"`
	SamplePeriod        *string  `json:"sample_period,omitempty" yaml:"sample_period,omitempty"`   // duration string like "20ms"
	MajorDebounce       *string  `json:"major_debounce,omitempty" yaml:"major_debounce,omitempty"` // includes the beep
	MinorDebounce       *string  `json:"minor_debounce,omitempty" yaml:"minor_debounce,omitempty"`
	BeepDuration        *string  `json:"beep_duration,omitempty" yaml:"beep_duration,omitempty"`

	// Light loop
	TunnelEnterThreshold *uint32 `json:"tunnel_enter_threshold,omitempty" yaml:"tunnel_enter_threshold,omitempty"`
	TunnelExitThreshold  *uint32 `json:"tunnel_exit_threshold,omitempty" yaml:"tunnel_exit_threshold,omitempty"`
	LightCheckPeriod     *string `json:"light_check_period,omitempty" yaml:"light_check_period,omitempty"`
	LightSamples         *int    `json:"light_samples,omitempty" yaml:"light_samples,omitempty"`

	// Serial bridge
	BridgeTimeout *string `json:"bridge_timeout,omitempty" yaml:"bridge_timeout,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint32(v uint32) *uint32    { return &v }

// EmptyNodeConfig returns a NodeConfig with all fields nil.
func EmptyNodeConfig() *NodeConfig {
	return &NodeConfig{}
}

// DefaultNodeConfig returns a NodeConfig with every field set to its factory
// value.
func DefaultNodeConfig() *NodeConfig {
	f := fusion.DefaultConfig()
	t := tunnel.DefaultConfig()
	return &NodeConfig{
		FilterAlpha:          ptrFloat64(f.Alpha),
		ShockNoiseThreshold:  ptrInt(f.Thresholds.Noise),
		ShockMinorThreshold:  ptrInt(f.Thresholds.Minor),
		ShockMajorThreshold:  ptrInt(f.Thresholds.Major),
		SamplePeriod:         ptrString(f.SamplePeriod.String()),
		MajorDebounce:        ptrString(f.MajorDebounce.String()),
		MinorDebounce:        ptrString(f.MinorDebounce.String()),
		BeepDuration:         ptrString(f.BeepDuration.String()),
		TunnelEnterThreshold: ptrUint32(t.EnterThreshold),
		TunnelExitThreshold:  ptrUint32(t.ExitThreshold),
		LightCheckPeriod:     ptrString(t.CheckPeriod.String()),
		LightSamples:         ptrInt(sensors.DefaultLightSamples),
		BridgeTimeout:        ptrString(sensors.DefaultBridgeTimeout.String()),
	}
}

// LoadNodeConfig loads a NodeConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNodeConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for test
// setup.
func MustLoadDefaultConfig() *NodeConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadNodeConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that every set field parses and that the resulting loop
// configurations are usable.
func (c *NodeConfig) Validate() error {
	durations := map[string]*string{
		"sample_period":      c.SamplePeriod,
		"major_debounce":     c.MajorDebounce,
		"minor_debounce":     c.MinorDebounce,
		"beep_duration":      c.BeepDuration,
		"light_check_period": c.LightCheckPeriod,
		"bridge_timeout":     c.BridgeTimeout,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.LightSamples != nil && *c.LightSamples < 1 {
		return fmt.Errorf("light_samples must be at least 1, got %d", *c.LightSamples)
	}
	if err := c.Fusion().Validate(); err != nil {
		return err
	}
	return c.Tunnel().Validate()
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetFilterAlpha returns the filter_alpha value or the default.
func (c *NodeConfig) GetFilterAlpha() float64 {
	if c.FilterAlpha == nil {
		return fusion.DefaultAlpha
	}
	return *c.FilterAlpha
}

// GetThresholds returns the shock thresholds, defaulting each unset one.
func (c *NodeConfig) GetThresholds() fusion.Thresholds {
	t := fusion.DefaultThresholds
	if c.ShockNoiseThreshold != nil {
		t.Noise = *c.ShockNoiseThreshold
	}
	if c.ShockMinorThreshold != nil {
		t.Minor = *c.ShockMinorThreshold
	}
	if c.ShockMajorThreshold != nil {
		t.Major = *c.ShockMajorThreshold
	}
	return t
}

func (c *NodeConfig) GetSamplePeriod() time.Duration {
	return durationOr(c.SamplePeriod, fusion.DefaultConfig().SamplePeriod)
}

func (c *NodeConfig) GetMajorDebounce() time.Duration {
	return durationOr(c.MajorDebounce, fusion.DefaultConfig().MajorDebounce)
}

func (c *NodeConfig) GetMinorDebounce() time.Duration {
	return durationOr(c.MinorDebounce, fusion.DefaultConfig().MinorDebounce)
}

func (c *NodeConfig) GetBeepDuration() time.Duration {
	return durationOr(c.BeepDuration, fusion.DefaultConfig().BeepDuration)
}

// GetTunnelEnterThreshold returns the tunnel_enter_threshold value or the default.
func (c *NodeConfig) GetTunnelEnterThreshold() uint32 {
	if c.TunnelEnterThreshold == nil {
		return tunnel.DefaultConfig().EnterThreshold
	}
	return *c.TunnelEnterThreshold
}

// GetTunnelExitThreshold returns the tunnel_exit_threshold value or the default.
func (c *NodeConfig) GetTunnelExitThreshold() uint32 {
	if c.TunnelExitThreshold == nil {
		return tunnel.DefaultConfig().ExitThreshold
	}
	return *c.TunnelExitThreshold
}

func (c *NodeConfig) GetLightCheckPeriod() time.Duration {
	return durationOr(c.LightCheckPeriod, tunnel.DefaultConfig().CheckPeriod)
}

// GetLightSamples returns how many ADC reads are averaged per light reading.
func (c *NodeConfig) GetLightSamples() int {
	if c.LightSamples == nil {
		return sensors.DefaultLightSamples
	}
	return *c.LightSamples
}

func (c *NodeConfig) GetBridgeTimeout() time.Duration {
	return durationOr(c.BridgeTimeout, sensors.DefaultBridgeTimeout)
}

// Fusion assembles the motion loop configuration.
func (c *NodeConfig) Fusion() fusion.Config {
	return fusion.Config{
		Alpha:         c.GetFilterAlpha(),
		Thresholds:    c.GetThresholds(),
		SamplePeriod:  c.GetSamplePeriod(),
		MajorDebounce: c.GetMajorDebounce(),
		MinorDebounce: c.GetMinorDebounce(),
		BeepDuration:  c.GetBeepDuration(),
	}
}

// Tunnel assembles the light loop configuration.
func (c *NodeConfig) Tunnel() tunnel.Config {
	return tunnel.Config{
		EnterThreshold: c.GetTunnelEnterThreshold(),
		ExitThreshold:  c.GetTunnelExitThreshold(),
		CheckPeriod:    c.GetLightCheckPeriod(),
	}
}
