package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"riskwatch/internal/config"
	"riskwatch/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		sectionLine("Risk config", cfg.Risk),
		sectionLine("Broker config", cfg.Broker),
		sectionLine("Notify config", cfg.Notify),
	}

	if rc := cfg.Risk.Value; rc != nil {
		lines = append(lines,
			fmt.Sprintf("Daily limits: stoploss %.2f / target %.2f", rc.DailyStoploss, rc.DailyTarget),
			fmt.Sprintf("Market hours: %s-%s (%s)", rc.MarketStart, rc.MarketEnd, rc.Location()),
			fmt.Sprintf("Tick interval: %s", rc.TickInterval),
		)
	}
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
