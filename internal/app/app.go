package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pewunit/internal/config"
	"pewunit/internal/eventbus"
	"pewunit/internal/observability/httpserver"
	"pewunit/internal/periodic"
	"pewunit/internal/reporter"
	"pewunit/internal/runner"
	"pewunit/internal/runtime/supervisor"
	"pewunit/internal/storage"
	logx "pewunit/pkg/logx"
)

// ErrRunFailed is returned when a run finishes with failed tests.
var ErrRunFailed = errors.New("run failed")

// Suite declares the modules and tests of one run. It is called on a fresh
// runner every time the suite runs.
type Suite func(r *runner.Runner)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	store   storage.Store
	metrics *reporter.Metrics
	http    *httpserver.Server
	suite   Suite

	// runMu serializes runs; the periodic trigger and RunOnce callers may
	// overlap.
	runMu sync.Mutex
}

func New(cfgPath string, suite Suite) (*App, error) {
	if suite == nil {
		return nil, fmt.Errorf("suite is nil")
	}
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	hc, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	metrics := reporter.NewMetrics()

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		metrics: metrics,
		http:    httpserver.New(hc, metrics.Registry(), log.With(logx.String("comp", "http"))),
		suite:   suite,
	}, nil
}

// Metrics exposes the collectors shared by all runs of this app.
func (a *App) Metrics() *reporter.Metrics { return a.metrics }

// RunOnce builds a runner from the current config, declares the suite and
// runs it to completion. A run with failed tests returns ErrRunFailed along
// with its summary.
func (a *App) RunOnce(ctx context.Context) (runner.RunEndEvent, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	cfg := a.cfgm.Get()
	rcfg, err := mapRunnerConfig(cfg)
	if err != nil {
		return runner.RunEndEvent{}, err
	}

	bus := eventbus.New()
	opts := []runner.Option{
		runner.WithLogger(a.log.With(logx.String("comp", "runner"))),
		runner.WithBus(bus),
	}
	if a.store != nil {
		rec := reporter.NewFailureRecorder(a.store, a.log.With(logx.String("comp", "failures")), rcfg.Seed)
		if err := rec.Load(ctx); err != nil {
			a.log.Warn("failure memory unavailable; running without it", logx.Err(err))
		} else {
			opts = append(opts, runner.WithPreviousFailures(rec.Lookup))
			bus.Listen(rec.Handle)
		}
	}
	bus.Listen(reporter.NewLogReporter(a.log.With(logx.String("comp", "report"))).Handle)
	bus.Listen(a.metrics.Handle)

	r, err := runner.New(rcfg, opts...)
	if err != nil {
		return runner.RunEndEvent{}, err
	}
	a.suite(r)

	end, runErr := r.Run(ctx)

	if path := metricsPath(cfg); path != "" {
		if err := a.metrics.Write(path); err != nil {
			a.log.Warn("metrics write failed", logx.String("path", path), logx.Err(err))
		}
	}
	if runErr != nil {
		return end, runErr
	}
	if end.Status == runner.StatusFailed {
		return end, ErrRunFailed
	}
	return end, nil
}

// Run runs the suite once, or, when a schedule is configured, keeps
// re-running it (with config hot reload) until ctx is done. Callers release
// resources with Stop either way.
func (a *App) Run(ctx context.Context) error {
	pc, scheduled, err := mapScheduleConfig(a.cfgm.Get())
	if err != nil {
		return err
	}
	if !scheduled {
		_, err := a.RunOnce(ctx)
		return err
	}

	trig, err := periodic.New(pc, a.log.With(logx.String("comp", "periodic")))
	if err != nil {
		return err
	}
	a.Start(ctx)
	a.sup.Go("periodic", func(c context.Context) error {
		return trig.Run(c, func(c context.Context) error {
			_, err := a.RunOnce(c)
			if errors.Is(err, runner.ErrAborted) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	})

	<-a.sup.Context().Done()
	return a.sup.Err()
}

// Start launches the background loops: config watching, hot reload and the
// observability server.
func (a *App) Start(ctx context.Context) {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
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
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithMaxRestarts(5),
	)
	a.http.Start(a.sup.Context())
	a.log.Info("app started")
}

// applyConfig applies a validated config. Runner settings are read at the
// start of every run and need no action here.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		switch s {
		case "storage", "schedule":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}
	a.logs.Apply(mapLogConfig(newCfg))
	if hc, err := mapHTTPConfig(newCfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else if a.sup != nil {
		a.http.Reconfigure(a.sup.Context(), hc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels the background loops and releases storage and log sinks.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	a.http.Stop(ctx)
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		c := a.sup.Counters()
		a.log.Debug("supervisor drained", logx.Int("started", int(c.Started)), logx.Int("panics", int(c.Panics)))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
