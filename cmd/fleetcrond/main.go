package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"fleetcron/internal/config"
	"fleetcron/internal/ledger"
	"fleetcron/internal/sched"
	"fleetcron/internal/schedule"
	"fleetcron/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./fleetcron.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	bootlog := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath, bootlog)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logxConfig(cfg))
	defer logSvc.Close()

	busy, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return err
	}
	led, err := ledger.Open(ledger.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		Table:       cfg.Store.Name,
		Retention:   cfg.Scheduler.Retention(),
		BusyTimeout: busy,
	}, log)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	if led == nil {
		log.Warn("run ledger disabled; jobs will not dedup across processes")
	} else {
		defer led.Close()
	}

	mode, err := schedule.ParseTimeMode(cfg.Scheduler.TimeMode)
	if err != nil {
		return err
	}

	s := sched.New(sched.Config{TimeMode: mode}, led, log)
	if err := registerJobs(s, cfg.Jobs, log); err != nil {
		return err
	}
	s.Start()
	defer s.Stop()

	// Config hot reload: logging knobs apply live; store/scheduler/job
	// changes need a restart.
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() {
		for next := range updates {
			logSvc.Apply(logxConfig(next))
			log.Info("logging config applied; store/scheduler/job changes need a restart")
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("fleetcrond ready",
		logx.Int("jobs", len(cfg.Jobs)),
		logx.String("store", cfg.Store.Driver))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("fleetcrond stopping")
	return nil
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
