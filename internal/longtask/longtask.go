// Package longtask runs a single long-running function on its own goroutine
// with panic recovery and periodic progress logging, so a programming error
// inside a lengthy procedure (the join coordinator's twelve-step protocol,
// chiefly) surfaces as a tagged Result rather than a raw panic that would
// otherwise take down whatever loop invoked it.
package longtask

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Result is what a long task produces, however it finishes.
type Result struct {
	Value    any
	Err      error
	Panicked bool
}

// Fn is a long-running unit of work. It receives a report function it may
// call at any point, from any goroutine, to surface progress; report never
// blocks, and drops the message when 16 reports are already waiting to be
// logged.
type Fn func(ctx context.Context, report func(string)) (any, error)

// Config controls a single Run invocation.
type Config struct {
	Name string
	// ProgressInterval controls how often a "still running" line, carrying
	// the last reported progress, is logged. Zero disables it.
	ProgressInterval time.Duration
	Logger           *zap.Logger
}

// Run executes fn on its own goroutine, blocking the caller until it
// completes or ctx is done. A ctx cancellation does not stop fn (Go has no
// way to force a goroutine to stop); it only stops Run from waiting and
// logs that the task outlived its context.
func Run(ctx context.Context, cfg Config, fn Fn) Result {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(zap.String("task", cfg.Name))

	done := make(chan Result, 1)
	progress := make(chan string, 16)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("long task panicked", zap.Any("panic", r))
				done <- Result{Panicked: true, Err: fmt.Errorf("task %q panicked: %v", cfg.Name, r)}
			}
		}()
		report := func(msg string) {
			select {
			case progress <- msg:
			default:
			}
		}
		value, err := fn(ctx, report)
		done <- Result{Value: value, Err: err}
	}()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if cfg.ProgressInterval > 0 {
		ticker = time.NewTicker(cfg.ProgressInterval)
		tickC = ticker.C
		defer ticker.Stop()
	}

	started := time.Now()
	last := "started"
	for {
		select {
		case res := <-done:
			logger.Info("long task finished", zap.Duration("elapsed", time.Since(started)),
				zap.Bool("panicked", res.Panicked), zap.Error(res.Err))
			return res
		case msg := <-progress:
			last = msg
			logger.Debug("long task progress", zap.String("detail", msg))
		case <-tickC:
			logger.Info("long task still running", zap.Duration("elapsed", time.Since(started)),
				zap.String("last_progress", last))
		case <-ctx.Done():
			logger.Warn("long task context done before completion", zap.Error(ctx.Err()))
			return Result{Err: ctx.Err()}
		}
	}
}
