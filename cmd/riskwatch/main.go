package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"riskwatch/internal/cli"
	"riskwatch/internal/config"
	"riskwatch/internal/svc"
	"riskwatch/pkg/risk"
)

var (
	configFile = flag.String("f", "etc/riskwatch.yaml", "the config file")
	showStatus = flag.Bool("status", false, "print today's recorded risk events and exit")
)

const shutdownTimeout = 10 * time.Second

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	cfg.MustSetUp()
	defer logx.Close()

	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcCtx, err := svc.NewServiceContext(*cfg)
	if err != nil {
		logx.Errorf("startup failed: %v", err)
		return
	}

	if *showStatus {
		printStatus(ctx, svcCtx)
		return
	}

	riskCfg := svcCtx.RiskConfig
	opts := []risk.EngineOption{risk.WithRecorder(svcCtx.Recorder)}
	if riskCfg.StateFile != "" {
		opts = append(opts, risk.WithStateFile(risk.NewStateFile(riskCfg.StateFile)))
	}
	engine := risk.NewEngine(riskCfg, svcCtx.Provider, svcCtx.Notifier, opts...)
	monitor := risk.NewMonitor(riskCfg, engine, svcCtx.Notifier)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := monitor.Run(ctx); err != nil {
			logx.Errorf("monitor stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logx.Info("shutdown signal received")

	// Let an in-flight tick finish its currently dispatched action.
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logx.Error("shutdown grace period elapsed, exiting")
	}
}

// printStatus lists the events recorded for the current trading day.
func printStatus(ctx context.Context, svcCtx *svc.ServiceContext) {
	if svcCtx.Events == nil {
		fmt.Println("no postgres event store configured")
		return
	}
	loc := svcCtx.RiskConfig.Location()
	events, err := svcCtx.Events.RecentEvents(ctx, time.Now().In(loc), 100)
	if err != nil {
		logx.Errorf("status: query events: %v", err)
		return
	}
	if len(events) == 0 {
		fmt.Println("no events recorded today")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-14s", ev.Time.In(loc).Format("15:04:05"), ev.Kind)
		if ev.Symbol != "" {
			line += "  " + ev.Symbol
		}
		if ev.Reason != "" {
			line += "  " + ev.Reason
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	}
}
