// internal/backend/browser/loading.go
package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/config"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultPollMax      = 30 * time.Second
)

func defaultLoadingSelectors() []string {
	return config.DefaultLoadingSelectors
}

// loadingPoller re-evaluates the loading heuristic until indicators disappear.
// At most one poll runs per adapter; starting a new one cancels the old.
type loadingPoller struct {
	adapter *Adapter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	active atomic.Int32
	polls  atomic.Int64
}

func newLoadingPoller(a *Adapter) *loadingPoller {
	return &loadingPoller{adapter: a}
}

// start probes once and, if loading is under way, arms a recurring poll. The
// first probe is returned. Failures fail open: page-ready is announced.
func (p *loadingPoller) start(ctx context.Context, selectors []string) LoadingProbe {
	p.stop()

	a := p.adapter
	probe, err := a.page.ProbeLoading(ctx, selectors)
	p.polls.Add(1)
	if err != nil {
		a.logger.Warn("Loading detection failed; assuming the page is ready.", zap.Error(err))
		a.publish(ctx, schemas.NotifyPageReady, nil)
		return LoadingProbe{}
	}
	a.publish(ctx, schemas.NotifyLoadingState, probe.State())
	if !probe.IsLoading {
		a.publish(ctx, schemas.NotifyPageReady, nil)
		return probe
	}

	interval := a.settings.Loading.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxDuration := a.settings.Loading.MaxDuration
	if maxDuration <= 0 {
		maxDuration = defaultPollMax
	}

	pollCtx, cancel := context.WithTimeout(context.Background(), maxDuration)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	p.active.Add(1)
	go p.run(pollCtx, selectors, interval, done)
	return probe
}

func (p *loadingPoller) run(ctx context.Context, selectors []string, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer p.active.Add(-1)

	a := p.adapter
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Superseded or shut down: the newer owner reports readiness.
			// Ran out of time: fail open.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				a.logger.Warn("Loading indicators outlived the poll limit; assuming ready.")
				a.publish(context.Background(), schemas.NotifyPageReady, nil)
			}
			return
		case <-ticker.C:
		}

		probe, err := a.page.ProbeLoading(ctx, selectors)
		p.polls.Add(1)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			a.logger.Warn("Loading poll failed; assuming the page is ready.", zap.Error(err))
			a.publish(ctx, schemas.NotifyPageReady, nil)
			return
		}
		a.publish(ctx, schemas.NotifyLoadingState, probe.State())
		if !probe.IsLoading {
			a.publish(ctx, schemas.NotifyPageReady, nil)
			return
		}
	}
}

// stop cancels the active poll, if any, and waits for it to exit.
func (p *loadingPoller) stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports how many polls are running; never more than one.
func (p *loadingPoller) Active() int {
	return int(p.active.Load())
}
