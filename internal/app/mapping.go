package app

import (
	"fmt"
	"strings"
	"time"

	"postpilot/internal/config"
	"postpilot/internal/engine"
	"postpilot/internal/notifier"
	"postpilot/internal/platform"
	"postpilot/internal/store"
	"postpilot/pkg/logx"
)

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "memory"
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory":
		return store.Config{Driver: "memory"}, nil
	case "file":
		return store.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return store.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return store.Config{}, err
		}
		return store.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	case "postgres":
		if path == "" {
			return store.Config{}, fmt.Errorf("storage.path (connection string) is required when storage.driver=postgres")
		}
		return store.Config{Driver: "postgres", Path: path}, nil
	default:
		return store.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	interval, err := config.ParseDurationOrDefault("scheduler.interval", cfg.Scheduler.Interval, 60*time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	dispatchTimeout, err := config.ParseDurationOrDefault("scheduler.dispatch_timeout", cfg.Scheduler.DispatchTimeout, 45*time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Interval:        interval,
		CronSpec:        strings.TrimSpace(cfg.Scheduler.Cron),
		DispatchTimeout: dispatchTimeout,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	enabled := true
	if nc.Enabled != nil {
		enabled = *nc.Enabled
	}
	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
		HistorySize:     nc.HistorySize,
	}, nil
}

// buildRegistry wires one publisher per configured platform tag. Tags with
// no config entry stay unregistered and fail at dispatch with a clear error.
func buildRegistry(cfg *config.Config, log logx.Logger) *platform.Registry {
	reg := platform.NewRegistry()
	for tag, pc := range cfg.Platforms {
		creds := platform.Credentials{
			AccessToken: pc.AccessToken,
			Subreddit:   pc.Subreddit,
		}
		plog := log.With(logx.String("platform", tag))
		switch strings.ToLower(strings.TrimSpace(tag)) {
		case platform.TagReddit:
			reg.Register(platform.NewReddit(creds, plog))
		case platform.TagLinkedIn:
			reg.Register(platform.NewLinkedIn(creds, plog))
		case platform.TagThreads:
			reg.Register(platform.NewThreads(creds, plog))
		case platform.TagX:
			reg.Register(platform.NewX(creds, plog))
		default:
			log.Warn("ignoring unknown platform in config", logx.String("platform", tag))
		}
	}
	return reg
}
