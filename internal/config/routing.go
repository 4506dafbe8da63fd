package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RiskThresholds are utilization ratios (revenue/threshold) at which an
// entity enters each risk tier.
type RiskThresholds struct {
	Exceeded float64 `mapstructure:"exceeded"`
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
}

type LoadBand struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

type RoutingConfig struct {
	SafetyBuffer float64        `mapstructure:"safetyBuffer"`
	Risk         RiskThresholds `mapstructure:"risk"`
	LoadBand     LoadBand       `mapstructure:"loadBand"`
	// Preferences maps a membership type to preferred entity names, in order.
	Preferences map[string][]string `mapstructure:"preferences"`
	SnapshotTTL time.Duration       `mapstructure:"snapshotTTL"`
}

func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		SafetyBuffer: 5000,
		Risk: RiskThresholds{
			Exceeded: 1.00,
			Critical: 0.94,
			High:     0.89,
			Medium:   0.78,
		},
		LoadBand:    LoadBand{Min: 0.30, Max: 0.70},
		Preferences: map[string][]string{},
		SnapshotTTL: 15 * time.Minute,
	}
}

// PreferredNames returns the configured preference list for a membership type.
func (c RoutingConfig) PreferredNames(membershipType string) []string {
	key := strings.ToUpper(strings.TrimSpace(membershipType))
	if key == "" {
		return nil
	}
	for k, names := range c.Preferences {
		if strings.ToUpper(k) == key {
			return names
		}
	}
	return nil
}

type RoutingConfigHolder struct {
	current atomic.Value // holds RoutingConfig
}

// NewStaticRoutingConfigHolder wraps a fixed config without file watching.
func NewStaticRoutingConfigHolder(cfg RoutingConfig) *RoutingConfigHolder {
	holder := &RoutingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRoutingConfigHolder() (*RoutingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("routing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/gymledger/config")
	v.AddConfigPath("/etc/gymledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ROUTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRoutingConfig()
	v.SetDefault("routing.safetyBuffer", defaults.SafetyBuffer)
	v.SetDefault("routing.risk.exceeded", defaults.Risk.Exceeded)
	v.SetDefault("routing.risk.critical", defaults.Risk.Critical)
	v.SetDefault("routing.risk.high", defaults.Risk.High)
	v.SetDefault("routing.risk.medium", defaults.Risk.Medium)
	v.SetDefault("routing.loadBand.min", defaults.LoadBand.Min)
	v.SetDefault("routing.loadBand.max", defaults.LoadBand.Max)
	v.SetDefault("routing.snapshotTTL", defaults.SnapshotTTL)
	_ = v.BindEnv("routing.safetyBuffer", "ROUTING_SAFETY_BUFFER")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg, err := decodeRoutingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticRoutingConfigHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRoutingConfig(v)
		if err != nil {
			log.Printf("[routing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[routing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RoutingConfigHolder) Get() RoutingConfig {
	return h.current.Load().(RoutingConfig)
}

func decodeRoutingConfig(v *viper.Viper) (RoutingConfig, error) {
	var cfg RoutingConfig
	if err := v.UnmarshalKey("routing", &cfg); err != nil {
		return RoutingConfig{}, err
	}
	if cfg.Preferences == nil {
		cfg.Preferences = map[string][]string{}
	}
	if err := ValidateRoutingConfig(cfg); err != nil {
		return RoutingConfig{}, err
	}
	return cfg, nil
}

func ValidateRoutingConfig(cfg RoutingConfig) error {
	if cfg.SafetyBuffer < 0 {
		return errors.New("routing.safetyBuffer cannot be negative")
	}
	r := cfg.Risk
	if !(r.Medium > 0 && r.Medium < r.High && r.High < r.Critical && r.Critical < r.Exceeded) {
		return fmt.Errorf("routing.risk thresholds must be strictly increasing: %+v", r)
	}
	if cfg.LoadBand.Min < 0 || cfg.LoadBand.Max > 1 || cfg.LoadBand.Min >= cfg.LoadBand.Max {
		return fmt.Errorf("routing.loadBand invalid: %+v", cfg.LoadBand)
	}
	return nil
}
