package svc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch/internal/config"
	"riskwatch/pkg/broker"
	"riskwatch/pkg/broker/sim"
	"riskwatch/pkg/notify"
	"riskwatch/pkg/risk"
)

func testAppConfig(t *testing.T) config.Config {
	t.Helper()
	riskCfg, err := risk.LoadConfigFromReader(strings.NewReader(
		"daily_stoploss: -5000\ndaily_target: 10000\ntimezone: UTC\n"))
	require.NoError(t, err)
	riskCfg.JournalDir = t.TempDir()

	var cfg config.Config
	cfg.Env = "test"
	cfg.Risk.Value = riskCfg
	cfg.Broker.Value = &broker.Config{
		Default: "paper",
		Providers: map[string]*broker.ProviderConfig{
			"paper": {Type: "sim"},
		},
	}
	cfg.Notify.Value = &notify.Config{Type: "log"}
	return cfg
}

func TestNewServiceContextWiresCollaborators(t *testing.T) {
	svc, err := NewServiceContext(testAppConfig(t))
	require.NoError(t, err)

	assert.IsType(t, &sim.Provider{}, svc.Provider)
	assert.IsType(t, notify.LogNotifier{}, svc.Notifier)
	assert.NotNil(t, svc.Recorder)
	assert.Nil(t, svc.Events, "no DSN means no postgres store")
}

func TestNewServiceContextRequiresRiskSection(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Risk.Value = nil

	_, err := NewServiceContext(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk section")
}

func TestNewServiceContextRequiresKnownDefaultProvider(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Broker.Value.Default = "missing"

	_, err := NewServiceContext(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default broker provider")
}
