// Package app wires the daemon together: config, logging, store, platform
// publishers, notifier, dispatch engine and the REST API, with an ordered
// shutdown path.
package app

import (
	"context"
	"fmt"
	"time"

	"postpilot/internal/api"
	"postpilot/internal/config"
	"postpilot/internal/engine"
	"postpilot/internal/eventbus"
	"postpilot/internal/notifier"
	"postpilot/internal/platform"
	"postpilot/internal/store"
	"postpilot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	bus    eventbus.Bus
	store  store.Store
	pubs   *platform.Registry
	notif  *notifier.Service
	engine *engine.Engine
	server *api.Server

	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("store opened", logx.String("driver", sc.Driver))

	pubs := buildRegistry(cfg, log.With(logx.String("comp", "platform")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	sinks := []notifier.Sink{notifier.LogSink{Log: log.With(logx.String("comp", "notify"))}}
	if cfg.Notifier.Telegram.Enabled {
		tg, err := notifier.NewTelegramSink(notifier.TelegramConfig{
			Enabled: true,
			Token:   cfg.Notifier.Telegram.Token,
			ChatID:  cfg.Notifier.Telegram.ChatID,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, tg)
	}
	notif := notifier.New(ncfg, log.With(logx.String("comp", "notifier")), sinks...)

	ecfg, err := mapEngineConfig(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	eng := engine.New(ecfg, st, pubs, notif, bus, log.With(logx.String("comp", "engine")))

	handler := &api.Handler{
		Store:    st,
		Engine:   eng,
		Notifier: notif,
		Pubs:     pubs,
		Log:      log.With(logx.String("comp", "api")),
	}
	server := api.NewServer(api.Config{
		Enabled: cfg.Server.Enabled,
		Addr:    cfg.Server.Addr,
	}, handler, log.With(logx.String("comp", "api")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   st,
		pubs:    pubs,
		notif:   notif,
		engine:  eng,
		server:  server,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.cancel = context.WithCancel(ctx)
	cfg := a.cfgm.Get()

	if a.notif.Enabled() {
		a.notif.Start(a.runCtx)
	}
	if cfg.Scheduler.Enabled {
		a.engine.Start(a.runCtx)
	} else {
		a.log.Info("scheduler disabled via config")
	}
	if err := a.server.Start(a.runCtx); err != nil {
		return err
	}

	// Background loops: event log, config reload fan-out, config file watch.
	go a.eventLoop(a.runCtx)
	sub := a.cfgm.Subscribe(8)
	go a.reloadLoop(a.runCtx, sub)
	go func() {
		if err := a.cfgm.Watch(a.runCtx); err != nil && a.runCtx.Err() == nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) eventLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// reloadLoop applies hot-reloadable config sections. Storage and server
// changes require a restart; everything else applies live.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(ctx, cfg)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(ncfg)
		if prev && !ncfg.Enabled {
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		} else if !prev && ncfg.Enabled {
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	// Scheduler enable/disable is live; interval/cron changes need a
	// stop+start which Start/Stop idempotency makes safe.
	if cfg.Scheduler.Enabled && !a.engine.Running() {
		a.log.Info("scheduler enabled via config")
		a.engine.Start(ctx)
	} else if !cfg.Scheduler.Enabled && a.engine.Running() {
		a.log.Info("scheduler disabled via config")
		a.engine.Stop()
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("api", 3*time.Second, func(c context.Context) error { return a.server.Stop(c) })
	step("engine", 2*time.Second, func(c context.Context) error { a.engine.Stop(); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("store", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
