package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"postpilot/internal/eventbus"
	"postpilot/internal/platform"
	"postpilot/internal/store"
	"postpilot/pkg/logx"
)

// Engine owns the recurring scan-and-dispatch trigger.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	log    logx.Logger
	store  store.Store
	pubs   *platform.Registry
	notif  Notifier
	bus    eventbus.Bus
	parser cron.Parser

	c      *cron.Cron
	runCtx context.Context

	// inFlight guards against overlapping scans when one tick outlives the
	// interval.
	inFlight atomic.Bool

	// last scan stats, guarded by mu
	lastScanAt  time.Time
	lastScanDue int

	nowFn func() time.Time
}

func New(cfg Config, st store.Store, pubs *platform.Registry, notif Notifier, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:   cfg.withDefaults(),
		log:   log,
		store: st,
		pubs:  pubs,
		notif: notif,
		bus:   bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		nowFn:  time.Now,
	}
}

// Start begins the recurring scan trigger. Idempotent: starting a running
// engine is a no-op. Returns immediately; scans run on the cron goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.c != nil {
		return
	}

	e.runCtx = ctx
	c := cron.New(cron.WithParser(e.parser))

	job := cron.FuncJob(func() { e.scanAndDispatch(e.runCtx) })
	if spec := strings.TrimSpace(e.cfg.CronSpec); spec != "" {
		if _, err := c.AddJob(spec, job); err != nil {
			e.log.Error("invalid cron spec, falling back to interval",
				logx.String("spec", spec), logx.Err(err), logx.Duration("interval", e.cfg.Interval))
			c.Schedule(cron.Every(e.cfg.Interval), job)
		}
	} else {
		c.Schedule(cron.Every(e.cfg.Interval), job)
	}

	c.Start()
	e.c = c
	e.log.Info("dispatch engine started",
		logx.Duration("interval", e.cfg.Interval), logx.String("cron", e.cfg.CronSpec))
}

// Stop cancels the recurring trigger. Idempotent: stopping a stopped engine
// is a no-op. A scan already in progress is allowed to finish; no new tick
// fires after Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.c
	e.c = nil
	e.mu.Unlock()

	if c == nil {
		return
	}
	c.Stop()
	e.log.Info("dispatch engine stopped")
}

// Running reports whether the trigger is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c != nil
}

func (e *Engine) now() time.Time {
	if e.nowFn != nil {
		return e.nowFn()
	}
	return time.Now()
}
