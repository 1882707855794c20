package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
	"github.com/hazyhaar/visacheck/slotwatch/internal/history"
	"github.com/hazyhaar/visacheck/slotwatch/internal/idgen"
	"github.com/hazyhaar/visacheck/slotwatch/internal/navigator"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type scriptedChecker struct {
	mu    sync.Mutex
	calls int
	steps []func() (navigator.Result, error)
}

func (c *scriptedChecker) Check(context.Context) (navigator.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.steps) {
		return c.steps[i]()
	}
	return navigator.Result{}, nil
}

type countingHeartbeat struct {
	n   int
	err error
}

func (h *countingHeartbeat) Heartbeat(context.Context) error {
	h.n++
	return h.err
}

// stopAfter returns a Sleep that records pauses and cancels after n of them.
func stopAfter(n int, cancel context.CancelFunc, got *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*got = append(*got, d)
		if len(*got) >= n {
			cancel()
			return context.Canceled
		}
		return nil
	}
}

func timeoutErr() error {
	return fault.Wrap("navigator: open selector", context.DeadlineExceeded)
}

func TestRun_ContinuesAfterTimeouts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := &scriptedChecker{steps: []func() (navigator.Result, error){
		func() (navigator.Result, error) { return navigator.Result{}, timeoutErr() },
		func() (navigator.Result, error) { return navigator.Result{}, timeoutErr() },
		func() (navigator.Result, error) { return navigator.Result{}, timeoutErr() },
	}}
	hb := &countingHeartbeat{}
	ledger := history.NewMemory(10)
	var pauses []time.Duration

	l := New(Config{
		Sleep:    stopAfter(3, cancel, &pauses),
		Recorder: ledger,
		IDs:      idgen.Sequence("check"),
		Logger:   quiet(),
	}, checker, hb)
	l.Run(ctx)

	if checker.calls != 3 {
		t.Fatalf("checks: got %d, want 3", checker.calls)
	}
	if hb.n != 1 {
		t.Fatalf("heartbeats: got %d, want 1", hb.n)
	}
	s := l.Stats()
	if s.Checks != 3 || s.Timeouts != 3 || s.Failures != 3 {
		t.Fatalf("stats: %+v", s)
	}

	recent, err := ledger.RecentChecks(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("recorded: got %d, want 3", len(recent))
	}
	for _, c := range recent {
		if c.Status != history.StatusError || c.ErrorKind != "timeout" {
			t.Fatalf("check %s: status %q kind %q", c.ID, c.Status, c.ErrorKind)
		}
	}
	if recent[0].ID != "check-3" {
		t.Fatalf("newest first: got %q", recent[0].ID)
	}
}

func TestRun_HeartbeatFailureDoesNotStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := &scriptedChecker{}
	hb := &countingHeartbeat{err: fault.New(fault.Transport, "notify: webhook", errors.New("refused"))}
	var pauses []time.Duration

	l := New(Config{Sleep: stopAfter(2, cancel, &pauses), Logger: quiet()}, checker, hb)
	l.Run(ctx)

	if hb.n != 1 || checker.calls != 2 {
		t.Fatalf("heartbeats %d, checks %d", hb.n, checker.calls)
	}
}

func TestRun_PausesWithinBounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lo, hi := 50*time.Second, 70*time.Second
	var pauses []time.Duration
	l := New(Config{
		IntervalMin: lo,
		IntervalMax: hi,
		Rand:        rand.New(rand.NewPCG(1, 2)),
		Sleep:       stopAfter(20, cancel, &pauses),
		Logger:      quiet(),
	}, &scriptedChecker{}, nil)
	l.Run(ctx)

	if len(pauses) != 20 {
		t.Fatalf("pauses: got %d", len(pauses))
	}
	for _, d := range pauses {
		if d < lo || d > hi {
			t.Fatalf("pause %s outside [%s, %s]", d, lo, hi)
		}
	}
}

func TestNextInterval_Inclusive(t *testing.T) {
	l := New(Config{
		IntervalMin: 1,
		IntervalMax: 3,
		Rand:        rand.New(rand.NewPCG(7, 7)),
		Logger:      quiet(),
	}, &scriptedChecker{}, nil)

	seen := map[time.Duration]bool{}
	for i := 0; i < 1000; i++ {
		d := l.NextInterval()
		if d < 1 || d > 3 {
			t.Fatalf("draw %s out of range", d)
		}
		seen[d] = true
	}
	if !seen[1] || !seen[3] {
		t.Fatalf("bounds never drawn: %v", seen)
	}
}

func TestNextInterval_Fixed(t *testing.T) {
	l := New(Config{IntervalMin: time.Minute, IntervalMax: time.Minute, Logger: quiet()}, &scriptedChecker{}, nil)
	if d := l.NextInterval(); d != time.Minute {
		t.Fatalf("got %s", d)
	}
}

func TestRunOnce_RecordsResult(t *testing.T) {
	months := []history.Month{
		{Label: "2025 October", Dates: []string{"3", "14"}},
		{Label: "2025 November", Dates: []string{}},
	}
	checker := &scriptedChecker{steps: []func() (navigator.Result, error){
		func() (navigator.Result, error) {
			return navigator.Result{
				Months:       months,
				Alerts:       1,
				NotifyErrors: []error{fault.New(fault.Transport, "notify: webhook", errors.New("502"))},
			}, nil
		},
	}}
	ledger := history.NewMemory(10)
	l := New(Config{Recorder: ledger, Logger: quiet()}, checker, nil)

	c := l.RunOnce(context.Background())
	if c.Status != history.StatusOK || c.Alerts != 1 || len(c.Months) != 2 {
		t.Fatalf("check: %+v", c)
	}
	if u, err := uuid.Parse(c.ID); err != nil || u.Version() != 7 {
		t.Fatalf("default id should be a UUIDv7: %q %v", c.ID, err)
	}

	s := l.Stats()
	if s.Checks != 1 || s.Alerts != 1 || s.NotifyErrors != 1 || s.Failures != 0 {
		t.Fatalf("stats: %+v", s)
	}
	if s.LastCheck.IsZero() {
		t.Fatal("last check not set")
	}

	recent, _ := ledger.RecentChecks(context.Background(), 1)
	if len(recent) != 1 || recent[0].ID != c.ID {
		t.Fatalf("recent: %+v", recent)
	}
}

func TestRunOnce_FailureKinds(t *testing.T) {
	errs := []error{
		timeoutErr(),
		fault.New(fault.StructureMismatch, "navigator: month label", errors.New("label is empty")),
		fault.New(fault.Transport, "browser: launch", errors.New("no chrome")),
		errors.New("something else"),
	}
	var steps []func() (navigator.Result, error)
	for _, e := range errs {
		steps = append(steps, func() (navigator.Result, error) { return navigator.Result{}, e })
	}
	l := New(Config{Logger: quiet()}, &scriptedChecker{steps: steps}, nil)

	wantKinds := []string{"timeout", "structure_mismatch", "transport", "unknown"}
	for _, want := range wantKinds {
		if c := l.RunOnce(context.Background()); c.ErrorKind != want {
			t.Fatalf("kind: got %q, want %q", c.ErrorKind, want)
		}
	}
	s := l.Stats()
	if s.Timeouts != 1 || s.StructureMismatches != 1 || s.TransportErrors != 1 || s.OtherErrors != 1 || s.Failures != 4 {
		t.Fatalf("stats: %+v", s)
	}
}

type panickingChecker struct{}

func (panickingChecker) Check(context.Context) (navigator.Result, error) {
	panic("calendar cell without a date")
}

func TestRunOnce_PanicIsRecordedAsUnknown(t *testing.T) {
	ledger := history.NewMemory(10)
	l := New(Config{Recorder: ledger, Logger: quiet()}, panickingChecker{}, nil)

	c := l.RunOnce(context.Background())
	if c.Status != history.StatusError || c.ErrorKind != "unknown" {
		t.Fatalf("check: %+v", c)
	}
	if !strings.Contains(c.Error, "panicked") {
		t.Fatalf("error: %q", c.Error)
	}
	if s := l.Stats(); s.OtherErrors != 1 || s.Failures != 1 || s.Checks != 1 {
		t.Fatalf("stats: %+v", s)
	}
	if recent, _ := ledger.RecentChecks(context.Background(), 1); len(recent) != 1 || recent[0].ID != c.ID {
		t.Fatalf("panic not recorded: %+v", recent)
	}
}

func TestRun_PanicDoesNotStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var pauses []time.Duration
	l := New(Config{Sleep: stopAfter(2, cancel, &pauses), Logger: quiet()}, panickingChecker{}, nil)

	l.Run(ctx)
	if s := l.Stats(); s.Checks != 2 {
		t.Fatalf("checks: got %d, want 2", s.Checks)
	}
}

func TestRunOnce_ShutdownIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	checker := &scriptedChecker{steps: []func() (navigator.Result, error){
		func() (navigator.Result, error) {
			cancel()
			return navigator.Result{}, fault.Wrap("navigator: month change", context.Canceled)
		},
	}}
	ledger := history.NewMemory(10)
	l := New(Config{Recorder: ledger, Logger: quiet()}, checker, nil)

	c := l.RunOnce(ctx)
	if c.Status != history.StatusCanceled || c.ErrorKind != "" {
		t.Fatalf("check: %+v", c)
	}
	s := l.Stats()
	if s.Failures != 0 || s.OtherErrors != 0 || s.Checks != 1 {
		t.Fatalf("stats: %+v", s)
	}
	if recent, _ := ledger.RecentChecks(context.Background(), 1); len(recent) != 1 || recent[0].Status != history.StatusCanceled {
		t.Fatalf("recent: %+v", recent)
	}
}

func TestRunOnce_CanceledWithoutShutdownIsAFailure(t *testing.T) {
	checker := &scriptedChecker{steps: []func() (navigator.Result, error){
		func() (navigator.Result, error) { return navigator.Result{}, context.Canceled },
	}}
	l := New(Config{Logger: quiet()}, checker, nil)

	if c := l.RunOnce(context.Background()); c.Status != history.StatusError {
		t.Fatalf("check: %+v", c)
	}
	if s := l.Stats(); s.OtherErrors != 1 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestSleep_Interruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}
