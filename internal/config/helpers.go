package config

import (
	"riskwatch/pkg/broker"
	"riskwatch/pkg/notify"
	"riskwatch/pkg/risk"
)

// MustLoadRisk loads etc/risk.yaml from the project root and panics on error.
// It isolates the risk section so tests that only need engine thresholds do
// not have to stand up the full application config.
func MustLoadRisk() *risk.Config {
	return risk.MustLoad()
}

// MustLoadBroker loads etc/broker.yaml from the project root and panics on error.
func MustLoadBroker() *broker.Config {
	return broker.MustLoad()
}

// MustBuildBrokerProviders loads broker config from the default path and
// builds provider instances; returns the map and default provider name.
func MustBuildBrokerProviders() (map[string]broker.Provider, string) {
	cfg := MustLoadBroker()
	providers, err := cfg.BuildProviders()
	if err != nil {
		panic(err)
	}
	return providers, cfg.Default
}

// MustLoadNotify loads etc/notify.yaml from the project root and panics on error.
func MustLoadNotify() *notify.Config {
	return notify.MustLoad()
}
