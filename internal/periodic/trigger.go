package periodic

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	logx "pewunit/pkg/logx"
)

// Config describes when a suite is re-run.
type Config struct {
	Spec string
	// MinInterval drops ticks that arrive sooner than this after the
	// previous accepted tick. Zero disables the limit.
	MinInterval time.Duration
	Location    *time.Location
}

// Trigger fires a job on a cron expression or a fixed interval. Runs never
// overlap: a tick that arrives while the job is busy is coalesced into one
// pending run.
type Trigger struct {
	spec    ParsedSpec
	sched   cron.Schedule
	loc     *time.Location
	limiter *rate.Limiter
	log     logx.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config, log logx.Logger) (*Trigger, error) {
	spec, err := ParseSchedule(cfg.Spec)
	if err != nil {
		return nil, err
	}
	t := &Trigger{spec: spec, loc: cfg.Location, log: log}
	if t.loc == nil {
		t.loc = time.Local
	}
	if spec.Kind == SpecCron {
		sched, err := parser.Parse(spec.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron %q: %w", spec.Cron, err)
		}
		t.sched = sched
	}
	if cfg.MinInterval > 0 {
		t.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	} else {
		t.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return t, nil
}

// Spec returns the parsed schedule.
func (t *Trigger) Spec() ParsedSpec { return t.spec }

// Next reports the next tick after now. Interval schedules tick relative to
// now.
func (t *Trigger) Next(now time.Time) time.Time {
	if t.sched != nil {
		return t.sched.Next(now.In(t.loc))
	}
	return now.Add(t.spec.Every)
}

// Run calls fn once immediately and then on every tick until ctx is done.
// Job errors are logged and do not stop the trigger.
func (t *Trigger) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ticks := make(chan struct{}, 1)
	signal := func() {
		select {
		case ticks <- struct{}{}:
		default:
			t.log.Debug("tick coalesced; run still in progress")
		}
	}

	switch t.spec.Kind {
	case SpecCron:
		c := cron.New(cron.WithParser(parser), cron.WithLocation(t.loc))
		c.Schedule(t.sched, cron.FuncJob(signal))
		c.Start()
		defer c.Stop()
	default:
		tk := time.NewTicker(t.spec.Every)
		defer tk.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-tk.C:
					signal()
				}
			}
		}()
	}

	t.log.Info("periodic trigger started",
		logx.String("source", t.spec.Source),
		logx.String("next", t.Next(time.Now()).Format(time.RFC3339)),
	)
	signal()

	runs := 0
	for {
		select {
		case <-ctx.Done():
			t.log.Info("periodic trigger stopped", logx.Int("runs", runs))
			return nil
		case <-ticks:
		}
		if !t.limiter.Allow() {
			t.log.Debug("tick dropped; min interval not elapsed")
			continue
		}
		runs++
		start := time.Now()
		if err := fn(ctx); err != nil {
			t.log.Warn("periodic run failed", logx.Int("run", runs), logx.Err(err))
			continue
		}
		t.log.Debug("periodic run done", logx.Int("run", runs), logx.Duration("took", time.Since(start)))
	}
}
