package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRoutingConfigDefaults(t *testing.T) {
	require.NoError(t, ValidateRoutingConfig(DefaultRoutingConfig()))
}

func TestValidateRoutingConfigRejectsUnorderedThresholds(t *testing.T) {
	cfg := DefaultRoutingConfig()
	cfg.Risk.High = 0.95
	require.Error(t, ValidateRoutingConfig(cfg))

	cfg = DefaultRoutingConfig()
	cfg.LoadBand = LoadBand{Min: 0.8, Max: 0.2}
	require.Error(t, ValidateRoutingConfig(cfg))

	cfg = DefaultRoutingConfig()
	cfg.SafetyBuffer = -1
	require.Error(t, ValidateRoutingConfig(cfg))
}

func TestPreferredNamesCaseInsensitive(t *testing.T) {
	cfg := DefaultRoutingConfig()
	cfg.Preferences = map[string][]string{"full_adult": {"Aura Fitness", "Tone Studio"}}

	require.Equal(t, []string{"Aura Fitness", "Tone Studio"}, cfg.PreferredNames("FULL_ADULT"))
	require.Nil(t, cfg.PreferredNames(""))
	require.Nil(t, cfg.PreferredNames("STUDENT"))
}

func TestUpdatePaymentURL(t *testing.T) {
	cfg := Config{BaseURL: "https://gym.example", Dunning: DunningConfig{UpdatePaymentPath: "billing/card"}}
	require.Equal(t, "https://gym.example/billing/card", cfg.UpdatePaymentURL())

	cfg.Dunning.UpdatePaymentPath = ""
	require.Equal(t, "https://gym.example", cfg.UpdatePaymentURL())
}
