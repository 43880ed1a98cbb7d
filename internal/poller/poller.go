package poller

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
)

// FetchFunc fetches the current value for one key. Errors are logged by
// the engine and leave the key's cached value untouched.
type FetchFunc[R any] func(ctx context.Context, key string) (R, error)

type UpdateFunc[R any] func(key string, result R)

type entry[R any] struct {
	result R
	seq    uint64
}

// Poller is a generic periodic-fetch engine: all keys are fetched
// concurrently on Start and then again after a fixed delay measured from
// the end of one round to the start of the next. Restarting cancels the
// previous schedule without waiting for in-flight fetches; every round
// carries a monotonic sequence number so a straggler from an old round
// can never overwrite a fresher result for the same key.
type Poller[R any] struct {
	name   string
	fetch  FetchFunc[R]
	logger logger.Logger

	// replaces the fixed interval when set; must be set before Start
	nextDelay func() time.Duration

	mu    sync.RWMutex
	cache map[string]entry[R]
	subs  []UpdateFunc[R]

	runMu  sync.Mutex
	cancel context.CancelFunc
	seq    atomic.Uint64
}

func New[R any](name string, fetch FetchFunc[R], logger logger.Logger) *Poller[R] {
	return &Poller[R]{
		name:   name,
		fetch:  fetch,
		logger: logger.With("poller", name),
		cache:  make(map[string]entry[R]),
	}
}

// SetNextDelay installs a schedule hook that overrides the fixed
// interval, e.g. to poll tightly inside a fund's publication window.
func (p *Poller[R]) SetNextDelay(fn func() time.Duration) {
	p.nextDelay = fn
}

// Start begins polling the given keys, replacing any previous schedule.
// The first round runs immediately.
func (p *Poller[R]) Start(keys []string, interval time.Duration) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.run(ctx, slices.Clone(keys), interval)
}

// Shutdown cancels the schedule and abandons in-flight fetches. Safe to
// call multiple times.
func (p *Poller[R]) Shutdown() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Get returns the last successful result for key. Never triggers a fetch.
func (p *Poller[R]) Get(key string) (R, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.cache[key]
	return e.result, ok
}

// OnUpdate registers a subscriber invoked once per successful fetch,
// after the cache is updated. The callback runs on the fetch goroutine
// and must not block.
func (p *Poller[R]) OnUpdate(fn UpdateFunc[R]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

func (p *Poller[R]) run(ctx context.Context, keys []string, interval time.Duration) {
	if len(keys) == 0 {
		p.logger.Infof("no keys to poll")
		return
	}
	p.logger.Infof("polling %d keys every %s", len(keys), interval)

	for {
		p.round(ctx, keys)
		if ctx.Err() != nil {
			return
		}

		delay := interval
		if p.nextDelay != nil {
			delay = p.nextDelay()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// round fetches every key concurrently and waits for the round to end,
// so the schedule delay is measured from round end. Per-key failures are
// logged and don't touch siblings.
func (p *Poller[R]) round(ctx context.Context, keys []string) {
	seq := p.seq.Add(1)

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := p.fetch(ctx, key)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.logger.Warnf("%s: can't fetch %s", err, key)
				return
			}
			p.apply(key, result, seq)
		}()
	}
	wg.Wait()
}

// apply stores the result and notifies subscribers as one step, dropping
// results whose round is older than what the cache already holds.
func (p *Poller[R]) apply(key string, result R, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.cache[key]; ok && e.seq > seq {
		p.logger.Debugf("dropping stale result for %s (round %d < %d)", key, seq, e.seq)
		return
	}
	p.cache[key] = entry[R]{result: result, seq: seq}
	for _, fn := range p.subs {
		fn(key, result)
	}
}
