// internal/stability/stability.go
package stability

import (
	"context"
	"errors"
	"time"
)

// Outcome describes how a wait for visual stability ended.
type Outcome int

const (
	// Stable means the sampled signal stopped changing.
	Stable Outcome = iota
	// Ready means the structural readiness signal fired first.
	Ready
	// Settled means the fallback delay elapsed first.
	Settled
	// TimedOut means the wait bound elapsed without convergence. This is
	// success with uncertainty, not an error.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Stable:
		return "stable"
	case Ready:
		return "ready"
	case Settled:
		return "settled"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result summarizes a completed wait.
type Result struct {
	Outcome Outcome
	Samples int
	Elapsed time.Duration
}

// Uncertain reports whether the surface may still be changing.
func (r Result) Uncertain() bool {
	return r.Outcome == TimedOut
}

// Monitor waits until a surface is visually stable. An error is returned only
// when ctx itself is done; a timeout is reported through Result.
type Monitor interface {
	Wait(ctx context.Context) (Result, error)
}

// Sampler reads one size-like observation of the surface, such as document
// height or node count.
type Sampler func(ctx context.Context) (int64, error)

// ConvergenceOptions configures Converge.
type ConvergenceOptions struct {
	Interval      time.Duration
	StableSamples int
	Timeout       time.Duration
}

func (o ConvergenceOptions) normalized() ConvergenceOptions {
	if o.Interval <= 0 {
		o.Interval = 100 * time.Millisecond
	}
	if o.StableSamples < 2 {
		o.StableSamples = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	return o
}

// Converge samples at a fixed interval until StableSamples consecutive
// observations are identical, or until Timeout elapses. A failed sample resets
// the streak.
func Converge(ctx context.Context, sample Sampler, opts ConvergenceOptions) (Result, error) {
	opts = opts.normalized()
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var (
		res    Result
		last   int64
		streak int
	)
	for {
		v, err := sample(waitCtx)
		res.Samples++
		switch {
		case err != nil:
			streak = 0
		case streak > 0 && v == last:
			streak++
		default:
			streak = 1
		}
		last = v
		if streak >= opts.StableSamples {
			res.Outcome, res.Elapsed = Stable, time.Since(start)
			return res, nil
		}

		select {
		case <-waitCtx.Done():
			res.Elapsed = time.Since(start)
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Outcome = TimedOut
			return res, nil
		case <-ticker.C:
		}
	}
}

// ReadySignal blocks until the surface reports structural readiness. It must
// return promptly once ctx is done.
type ReadySignal func(ctx context.Context) error

// Race waits for whichever comes first: the readiness signal or the fallback
// delay. A nil signal waits for the fallback alone. A signal that fails is
// ignored and the fallback decides.
func Race(ctx context.Context, ready ReadySignal, fallback time.Duration) (Result, error) {
	start := time.Now()
	timer := time.NewTimer(fallback)
	defer timer.Stop()

	var readyCh chan error
	if ready != nil {
		raceCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		readyCh = make(chan error, 1)
		go func() { readyCh <- ready(raceCtx) }()
	}

	for {
		select {
		case <-ctx.Done():
			return Result{Elapsed: time.Since(start)}, ctx.Err()
		case err := <-readyCh:
			if err == nil {
				return Result{Outcome: Ready, Elapsed: time.Since(start)}, nil
			}
			// Fall through to the timer.
			readyCh = nil
		case <-timer.C:
			return Result{Outcome: Settled, Elapsed: time.Since(start)}, nil
		}
	}
}

// ConvergenceMonitor adapts Converge to the Monitor interface.
type ConvergenceMonitor struct {
	Sample  Sampler
	Options ConvergenceOptions
}

// Wait implements Monitor.
func (m ConvergenceMonitor) Wait(ctx context.Context) (Result, error) {
	if m.Sample == nil {
		return Result{}, errors.New("convergence monitor has no sampler")
	}
	return Converge(ctx, m.Sample, m.Options)
}

// RaceMonitor adapts Race to the Monitor interface.
type RaceMonitor struct {
	Ready    ReadySignal
	Fallback time.Duration
}

// Wait implements Monitor.
func (m RaceMonitor) Wait(ctx context.Context) (Result, error) {
	return Race(ctx, m.Ready, m.Fallback)
}

// MonitorFunc lets an ordinary function serve as a Monitor.
type MonitorFunc func(ctx context.Context) (Result, error)

// Wait implements Monitor.
func (f MonitorFunc) Wait(ctx context.Context) (Result, error) {
	return f(ctx)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
