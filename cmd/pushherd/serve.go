package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pushherd/internal/alert"
	"pushherd/internal/api"
	"pushherd/internal/broadcast"
	"pushherd/internal/config"
	"pushherd/internal/debug"
	"pushherd/internal/push"
	"pushherd/internal/sched"
	"pushherd/internal/store"
	logx "pushherd/pkg/logx"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "path to config file (yaml or json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(*cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	var notifier logx.Notifier
	if cfg.Alert != nil {
		tg, err := alert.NewTelegram(alert.Config{Token: cfg.Alert.Token, ChatID: cfg.Alert.ChatID})
		if err != nil {
			logx.NewConsole(cfg.Logging.Level).Warn("telegram alerts disabled", logx.Err(err))
		} else {
			notifier = tg
		}
	}

	logSvc, log := logx.New(logConfig(cfg.Logging), notifier)
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	disp, err := newDispatcher(cfg, st, log)
	if err != nil {
		return err
	}

	scheduler := sched.New(disp, log.With(logx.String("comp", "sched")))
	if err := scheduler.Apply(cfg.Schedules); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	pp := debug.NewPprofServer(log)
	pp.Apply(ctx, debug.PprofConfig{Enabled: cfg.Pprof.Enabled, Address: cfg.Pprof.Address})
	defer pp.Stop(context.Background())

	// Live reload: logging, schedules and pprof follow the config file.
	// Storage, VAPID identity and the HTTP listener need a restart.
	updates := mgr.Subscribe(4)
	defer mgr.Unsubscribe(updates)
	go func() { _ = mgr.Watch(ctx) }()
	go func() {
		for c := range updates {
			logSvc.Apply(logConfig(c.Logging))
			if err := scheduler.Apply(c.Schedules); err != nil {
				log.Warn("schedule reload rejected", logx.Err(err))
			}
			pp.Apply(ctx, debug.PprofConfig{Enabled: c.Pprof.Enabled, Address: c.Pprof.Address})
		}
	}()

	handler := api.NewHandler(disp, st, cfg.VAPID.PublicKey, log.With(logx.String("comp", "api")))
	srv := api.NewServer(cfg.HTTP.Addr, handler, log.With(logx.String("comp", "http")))

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()

	log.Info("pushherd started", logx.String("config", *cfgPath))
	return srv.Run(ctx)
}

func logConfig(c config.LoggingConfig) logx.Config {
	console := true
	if c.Console != nil {
		console = *c.Console
	}
	return logx.Config{
		Level:   c.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Alert: logx.AlertConfig{
			Enabled:    c.Alert.Enabled,
			MinLevel:   c.Alert.MinLevel,
			RatePerSec: c.Alert.RatePerSec,
		},
	}
}

func openStore(cfg *config.Config, log logx.Logger) (store.Store, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "store")))
}

func newDispatcher(cfg *config.Config, st store.Store, log logx.Logger) (*broadcast.Dispatcher, error) {
	timeout, err := config.ParseDurationField("push.timeout", cfg.Push.Timeout)
	if err != nil {
		return nil, err
	}
	transport := push.NewWebPush(push.Config{
		VAPIDPublicKey:  cfg.VAPID.PublicKey,
		VAPIDPrivateKey: cfg.VAPID.PrivateKey,
		Subscriber:      cfg.VAPID.Subscriber,
		TTL:             cfg.Push.TTL,
		Timeout:         timeout,
	}, log.With(logx.String("comp", "webpush")))

	return broadcast.New(broadcast.Config{
		Workers:    cfg.Broadcast.Workers,
		RatePerSec: cfg.Broadcast.RatePerSec,
		Icon:       cfg.Push.Icon,
		Badge:      cfg.Push.Badge,
	}, st, transport, log.With(logx.String("comp", "broadcast"))), nil
}
