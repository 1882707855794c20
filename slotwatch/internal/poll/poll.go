// Package poll runs checks forever with a jittered pause between them.
//
// A failed check is logged by kind and counted; it never stops the loop.
// Only context cancellation does.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
	"github.com/hazyhaar/visacheck/slotwatch/internal/history"
	"github.com/hazyhaar/visacheck/slotwatch/internal/idgen"
	"github.com/hazyhaar/visacheck/slotwatch/internal/navigator"
)

// Checker runs one full check. navigator.Navigator implements it.
type Checker interface {
	Check(ctx context.Context) (navigator.Result, error)
}

// Heartbeater announces that the loop is up.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// Recorder stores finished checks. history.Ledger implementations satisfy it.
type Recorder interface {
	RecordCheck(ctx context.Context, c history.Check) error
}

// Config tunes the loop.
type Config struct {
	// IntervalMin and IntervalMax bound the pause between checks. Both
	// ends are inclusive. Defaults: 50s and 70s.
	IntervalMin time.Duration
	IntervalMax time.Duration

	// Rand overrides the jitter source.
	Rand *rand.Rand
	// Sleep overrides the pause. It must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	// IDs generates check IDs. Default: UUIDv7.
	IDs idgen.Generator
	// Recorder is optional.
	Recorder Recorder

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.IntervalMin <= 0 {
		c.IntervalMin = 50 * time.Second
	}
	if c.IntervalMax <= 0 {
		c.IntervalMax = 70 * time.Second
	}
	if c.IntervalMax < c.IntervalMin {
		c.IntervalMax = c.IntervalMin
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	if c.IDs == nil {
		c.IDs = idgen.UUIDv7()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Loop is the scheduler. Run it from a single goroutine; Stats is safe to
// call from anywhere.
type Loop struct {
	cfg     Config
	checker Checker
	hb      Heartbeater

	checks       atomic.Int64
	timeouts     atomic.Int64
	mismatches   atomic.Int64
	transports   atomic.Int64
	others       atomic.Int64
	alerts       atomic.Int64
	notifyErrors atomic.Int64
	lastStart    atomic.Int64 // unix nanos
	lastNs       atomic.Int64
	totalNs      atomic.Int64
}

// New creates a Loop.
func New(cfg Config, checker Checker, hb Heartbeater) *Loop {
	cfg.defaults()
	return &Loop{cfg: cfg, checker: checker, hb: hb}
}

// Run sends the heartbeat once, then checks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	log := l.cfg.Logger
	log.Info("poll: starting checker",
		"interval_min", l.cfg.IntervalMin, "interval_max", l.cfg.IntervalMax)

	if l.hb != nil {
		if err := l.hb.Heartbeat(ctx); err != nil {
			log.Warn("poll: heartbeat not delivered", "kind", fault.KindOf(err).String(), "error", err)
		}
	}

	for {
		l.RunOnce(ctx)
		if ctx.Err() != nil {
			break
		}

		d := l.NextInterval()
		log.Info("poll: waiting before next check", "sleep", d.Round(time.Second))
		if err := l.cfg.Sleep(ctx, d); err != nil {
			break
		}
	}
	log.Info("poll: stopped")
}

// RunOnce performs a single check, logs and counts its outcome and records
// it. The returned Check is what was recorded.
func (l *Loop) RunOnce(ctx context.Context) history.Check {
	log := l.cfg.Logger
	start := time.Now()
	c := history.Check{
		ID:        l.cfg.IDs(),
		StartedAt: start.UTC(),
		Status:    history.StatusOK,
	}
	log = log.With("check_id", c.ID)
	log.Info("poll: starting check")

	res, err := l.check(ctx, log)
	c.Duration = time.Since(start)
	c.Months = res.Months
	c.Alerts = res.Alerts

	l.checks.Add(1)
	l.alerts.Add(int64(res.Alerts))
	l.notifyErrors.Add(int64(len(res.NotifyErrors)))
	l.lastStart.Store(start.UnixNano())
	l.lastNs.Store(int64(c.Duration))
	l.totalNs.Add(int64(c.Duration))

	for _, nerr := range res.NotifyErrors {
		log.Warn("poll: notification not delivered", "kind", fault.KindOf(nerr).String(), "error", nerr)
	}

	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled):
		c.Status = history.StatusCanceled
		c.Error = err.Error()
		log.Info("poll: check interrupted by shutdown", "duration", c.Duration)
	case err != nil:
		kind := fault.KindOf(err)
		c.Status = history.StatusError
		c.ErrorKind = kind.String()
		c.Error = err.Error()
		l.countFailure(kind)
		log.Error("poll: check failed", "kind", kind.String(), "error", err, "duration", c.Duration)
	default:
		log.Info("poll: check done", "months", len(c.Months), "alerts", c.Alerts, "duration", c.Duration)
	}

	if l.cfg.Recorder != nil {
		if err := l.cfg.Recorder.RecordCheck(context.WithoutCancel(ctx), c); err != nil {
			log.Warn("poll: record check", "error", err)
		}
	}
	return c
}

// check runs the checker and turns a panic into an error of unknown kind.
func (l *Loop) check(ctx context.Context, log *slog.Logger) (res navigator.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("poll: check panic recovered", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("poll: check panicked: %v", r)
		}
	}()
	return l.checker.Check(ctx)
}

func (l *Loop) countFailure(kind fault.Kind) {
	switch kind {
	case fault.Timeout:
		l.timeouts.Add(1)
	case fault.StructureMismatch:
		l.mismatches.Add(1)
	case fault.Transport:
		l.transports.Add(1)
	default:
		l.others.Add(1)
	}
}

// NextInterval draws the next pause uniformly from [IntervalMin, IntervalMax].
func (l *Loop) NextInterval() time.Duration {
	span := int64(l.cfg.IntervalMax - l.cfg.IntervalMin)
	if span <= 0 {
		return l.cfg.IntervalMin
	}
	var n int64
	if l.cfg.Rand != nil {
		n = l.cfg.Rand.Int64N(span + 1)
	} else {
		n = rand.Int64N(span + 1)
	}
	return l.cfg.IntervalMin + time.Duration(n)
}

// Stats are point-in-time counters.
type Stats struct {
	Checks              int64         `json:"checks"`
	Failures            int64         `json:"failures"`
	Timeouts            int64         `json:"timeouts"`
	StructureMismatches int64         `json:"structure_mismatches"`
	TransportErrors     int64         `json:"transport_errors"`
	OtherErrors         int64         `json:"other_errors"`
	Alerts              int64         `json:"alerts"`
	NotifyErrors        int64         `json:"notify_errors"`
	LastCheck           time.Time     `json:"last_check,omitzero"`
	LastDuration        time.Duration `json:"last_duration"`
	AvgDuration         time.Duration `json:"avg_duration"`
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	s := Stats{
		Checks:              l.checks.Load(),
		Timeouts:            l.timeouts.Load(),
		StructureMismatches: l.mismatches.Load(),
		TransportErrors:     l.transports.Load(),
		OtherErrors:         l.others.Load(),
		Alerts:              l.alerts.Load(),
		NotifyErrors:        l.notifyErrors.Load(),
		LastDuration:        time.Duration(l.lastNs.Load()),
	}
	s.Failures = s.Timeouts + s.StructureMismatches + s.TransportErrors + s.OtherErrors
	if ns := l.lastStart.Load(); ns != 0 {
		s.LastCheck = time.Unix(0, ns).UTC()
	}
	if s.Checks > 0 {
		s.AvgDuration = time.Duration(l.totalNs.Load() / s.Checks)
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
