package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"skeddy/internal/bot"
	"skeddy/internal/config"
	"skeddy/internal/dateparse"
	"skeddy/internal/metrics"
	"skeddy/internal/notifier"
	"skeddy/internal/reminder"
	"skeddy/internal/runtime/supervisor"
	kit "skeddy/internal/transport"
	telegram "skeddy/internal/transport/telegram/adapter"
	logx "skeddy/pkg/logx"
	"skeddy/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter

	store   *reminder.Store
	intake  *reminder.Intake
	sched   *reminder.Scheduler
	notif   *notifier.Service
	bot     *bot.Handler
	reg     *prometheus.Registry
	metrics *metrics.Server

	updates chan kit.Update
}

// NewApp loads the config file and wires the Telegram bot.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, fmt.Errorf("telegram token is empty (set telegram.token or %s)", config.TokenEnv)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))

	pollTimeout, err := mapPollTimeout(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, logSvc, log, ad)
}

// newApp wires every component around an already constructed adapter.
func newApp(cfgm *config.ConfigManager, cfg *config.Config, logSvc *logx.Service, log logx.Logger, ad kit.Adapter) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obs := metrics.MustNewMetrics(reg)

	store := reminder.NewStore()
	intake := reminder.NewIntake(
		reminder.NewExtractor(dateparse.NewWhen()),
		store,
		log.With(logx.String("comp", "intake")),
		obs,
	)

	h := bot.New(ad, intake, store, log.With(logx.String("comp", "bot")))
	h.SetLocation(loc)

	notif := notifier.New(ncfg, ad, bot.NotificationFormatter(h.Location), log.With(logx.String("comp", "notifier")))
	metrics.RegisterQueueDepth(reg, notif.QueueLen)

	sched := reminder.NewScheduler(store, notif, log.With(logx.String("comp", "scheduler")),
		reminder.WithInterval(cfg.SchedulerInterval(reminder.DefaultInterval)),
		reminder.WithObserver(obs),
	)

	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		adapter: ad,
		store:   store,
		intake:  intake,
		sched:   sched,
		notif:   notif,
		bot:     h,
		reg:     reg,
		metrics: metrics.NewServer(mapMetricsConfig(cfg), reg, log.With(logx.String("comp", "metrics"))),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapNotifierConfig(cfg)
		return err
	})

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("menu.sync", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, a.bot.Commands()); err != nil {
				a.log.Warn("menu commands update failed", logx.Err(err))
			}
		})
	}

	a.notif.Start(run)
	a.sched.Start(run)
	a.metrics.Reconfigure(run, mapMetricsConfig(a.cfgm.Get()))

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.DispatchLoop(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, func() bool {
			// The scheduler must have ticked within a few intervals.
			last := a.sched.Last().At
			return last.IsZero() || time.Since(last) < 3*a.sched.Interval()
		})
	})
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started", logx.Duration("tick", a.sched.Interval()), logx.String("tz", a.bot.Location().String()))
	return nil
}

// applyConfig fans a reloaded config out to the live components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range sections {
		switch s {
		case "telegram":
			a.log.Warn("telegram config changed; restart required for changes to take effect")
		case "logging":
			if a.logs != nil {
				a.logs.Apply(mapLoggingConfig(newCfg))
			}
		case "scheduler":
			a.sched.SetInterval(newCfg.SchedulerInterval(reminder.DefaultInterval))
			if loc, err := newCfg.Location(); err == nil {
				a.bot.SetLocation(loc)
			}
		case "notifier":
			ncfg, err := mapNotifierConfig(newCfg)
			if err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
				continue
			}
			a.notif.Apply(ncfg)
		case "metrics":
			a.metrics.Reconfigure(ctx, mapMetricsConfig(newCfg))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Scheduler first so no new dispatches start while the notifier drains.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("metrics", 1*time.Second, func(c context.Context) error { a.metrics.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)

	st := a.store.Stats()
	a.log.Info("stopped", logx.Int("pending_dropped", st.Pending))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
