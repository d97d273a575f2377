package svc

import (
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"riskwatch/internal/config"
	"riskwatch/internal/store"
	"riskwatch/pkg/broker"
	_ "riskwatch/pkg/broker/dhan" // register dhan provider
	_ "riskwatch/pkg/broker/sim"  // register sim provider
	"riskwatch/pkg/journal"
	"riskwatch/pkg/notify"
	_ "riskwatch/pkg/notify/telegram" // register telegram notifier
	"riskwatch/pkg/risk"
)

// ServiceContext wires together everything the monitor needs: the risk
// configuration, the broker provider, the notifier and the audit recorders.
type ServiceContext struct {
	Config config.Config

	RiskConfig *risk.Config
	Provider   broker.Provider
	Notifier   notify.Notifier
	Recorder   risk.EventRecorder
	Events     *store.EventStore
}

func NewServiceContext(c config.Config) (*ServiceContext, error) {
	svc := &ServiceContext{Config: c}

	svc.RiskConfig = c.Risk.Value
	if svc.RiskConfig == nil {
		return nil, fmt.Errorf("svc: risk section is required")
	}

	brokerCfg := c.Broker.Value
	if brokerCfg == nil {
		return nil, fmt.Errorf("svc: broker section is required")
	}
	providers, err := brokerCfg.BuildProviders()
	if err != nil {
		return nil, fmt.Errorf("svc: build broker providers: %w", err)
	}
	provider, ok := providers[brokerCfg.Default]
	if !ok {
		return nil, fmt.Errorf("svc: default broker provider %q not configured", brokerCfg.Default)
	}
	svc.Provider = provider

	notifyCfg := c.Notify.Value
	if notifyCfg == nil {
		notifyCfg = &notify.Config{}
		if err := notifyCfg.Validate(); err != nil {
			return nil, err
		}
	}
	svc.Notifier, err = notifyCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("svc: build notifier: %w", err)
	}

	recorders := []risk.EventRecorder{journal.NewWriter(svc.RiskConfig.JournalDir)}
	if dsn := c.Postgres.DSN; dsn != "" {
		events, err := store.Open(dsn, c.Postgres.MaxOpen, c.Postgres.MaxIdle)
		if err != nil {
			logx.Errorf("svc: postgres event store disabled: %v", err)
		} else {
			svc.Events = events
			recorders = append(recorders, events)
		}
	}
	svc.Recorder = risk.MultiRecorder(recorders...)

	return svc, nil
}
