// Package ticker drives the queue -> pipeline loop: periodically pulls
// the next patch-set off the ring queue, creates its Branch if needed,
// and steps the Engine for every in-flight branch, honoring stage
// drivers' GetDelay hints between polls.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/cfbotcore/pipeline/internal/config"
	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/pipeline"
	"github.com/cfbotcore/pipeline/internal/queue"
)

// Stepper is the shape Ticker needs from an engine. *pipeline.Engine
// and *pipeline.TracedEngine both satisfy it, so a daemon can wire in
// tracing without Ticker knowing about OpenTelemetry.
type Stepper interface {
	Step(ctx context.Context, b *pipeline.Branch) (*time.Duration, error)
}

// Ticker owns the main loop. Reconfigure via the Reloader's broker so a
// config file edit's new tick_interval takes effect without a restart.
type Ticker struct {
	Queue    *queue.Queue
	Branches pipeline.Store
	Ledger   ledger.Store
	Engine   Stepper

	interval time.Duration

	mu       sync.Mutex
	active   map[string]time.Time // patch-id -> earliest time eligible for next Step
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Ticker with the given tick interval.
func New(q *queue.Queue, branches pipeline.Store, ledgerStore ledger.Store, engine Stepper, interval time.Duration) *Ticker {
	return &Ticker{
		Queue:    q,
		Branches: branches,
		Ledger:   ledgerStore,
		Engine:   engine,
		interval: interval,
		active:   make(map[string]time.Time),
		done:     make(chan struct{}),
	}
}

// Run blocks, ticking every interval until ctx is cancelled or Stop is
// called.
func (t *Ticker) Run(ctx context.Context) {
	cur := t.currentInterval()
	timer := time.NewTicker(cur)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-timer.C:
			t.tick(ctx)
			if d := t.currentInterval(); d > 0 && d != cur {
				timer.Reset(d)
				cur = d
			}
		}
	}
}

// TickOnce runs a single queue-advance-and-step cycle, for callers
// that don't want Run's resident loop (e.g. a cron-driven `tick` CLI
// invocation).
func (t *Ticker) TickOnce(ctx context.Context) {
	t.tick(ctx)
}

// Stop terminates Run.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *Ticker) currentInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval changes the tick pace — wired to config.Reloaded so an
// edited tick_interval takes effect after Run's next tick.
func (t *Ticker) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
}

// WatchConfig subscribes to r's reload broker and updates the tick
// interval whenever a new config is published.
func (t *Ticker) WatchConfig(ctx context.Context, r *config.Reloader) {
	ch := r.Broker().Subscribe(ctx)
	go func() {
		for ev := range ch {
			t.SetInterval(ev.Payload.Config.TickInterval)
			log.Info(log.CatEngine, "ticker interval updated from reloaded config", "interval", ev.Payload.Config.TickInterval)
		}
	}()
}

func (t *Ticker) tick(ctx context.Context) {
	if _, _, err := t.Queue.GetAndAdvance(); err != nil {
		log.ErrorErr(log.CatEngine, "queue advance failed", err)
	}

	for _, item := range t.Queue.All() {
		if item.IgnoredAt != nil {
			continue
		}
		if _, err := pipeline.CreateBranch(ctx, t.Queue, t.Branches, t.Ledger, item.PatchID, item.MessageID); err != nil {
			log.ErrorErr(log.CatEngine, "create branch failed", err, "patch_id", item.PatchID)
			continue
		}
		t.stepBranch(ctx, item.PatchID)
	}
}

func (t *Ticker) stepBranch(ctx context.Context, patchID string) {
	t.mu.Lock()
	eligible, scheduled := t.active[patchID]
	now := time.Now()
	if scheduled && now.Before(eligible) {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	b, ok, err := t.Branches.Get(ctx, patchID)
	if err != nil {
		log.ErrorErr(log.CatEngine, "load branch failed", err, "patch_id", patchID)
		return
	}
	if !ok || b.Status.IsTerminal() {
		t.mu.Lock()
		delete(t.active, patchID)
		t.mu.Unlock()
		return
	}

	delay, err := t.Engine.Step(ctx, b)
	if err != nil {
		log.ErrorErr(log.CatEngine, "engine step failed", err, "patch_id", patchID)
	}
	if err := t.Branches.Save(ctx, b); err != nil {
		log.ErrorErr(log.CatEngine, "save branch after step failed", err, "patch_id", patchID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if delay != nil {
		t.active[patchID] = time.Now().Add(*delay)
	} else {
		delete(t.active, patchID)
	}
}
