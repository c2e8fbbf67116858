package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/debatekeeper/internal/common"
	"github.com/dmitrijs2005/debatekeeper/internal/logging"
)

// Handler processes one inbound event.
type Handler func(ctx context.Context, ev Event)

// ConflictRecorder counts observed upstream conflicts. Implemented by the
// metrics collector.
type ConflictRecorder interface {
	RecordStreamConflict()
}

type nopConflictRecorder struct{}

func (nopConflictRecorder) RecordStreamConflict() {}

// Guard runs the process-wide receive loop. It does not resolve
// multi-instance conflicts (the upstream is the sole arbiter of
// exclusivity); it detects them, logs a diagnostic naming the likely cause,
// and keeps the process alive so the operator can redeploy. All other stream
// errors are fatal and propagate.
type Guard struct {
	src      Source
	instance Instance
	logger   logging.Logger
	metrics  ConflictRecorder

	// conflictBackoff is the pause before re-polling after a conflict.
	conflictBackoff time.Duration
}

func NewGuard(src Source, instance Instance, logger logging.Logger, metrics ConflictRecorder) *Guard {
	if metrics == nil {
		metrics = nopConflictRecorder{}
	}
	return &Guard{
		src:             src,
		instance:        instance,
		logger:          logger,
		metrics:         metrics,
		conflictBackoff: 5 * time.Second,
	}
}

// Run polls the source until the context is cancelled or a fatal stream
// error occurs. Handler panics are recovered so one bad update cannot kill
// the consumer loop.
func (g *Guard) Run(ctx context.Context, handler Handler) error {
	g.logger.Info(ctx, "consumer loop started",
		"instance", g.instance.ID, "host", g.instance.Host, "pid", g.instance.PID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := g.src.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, common.ErrConflict) {
				// One diagnostic per occurrence; the condition is not a crash.
				g.metrics.RecordStreamConflict()
				g.logger.Error(ctx, "another consumer holds the update stream",
					"instance", g.instance.ID,
					"hint", "a stale prior instance may still be polling, or a residual webhook registration must be cleared",
					"error", err.Error())
				g.sleep(ctx)
				continue
			}
			return fmt.Errorf("stream receive: %w", err)
		}

		for _, ev := range events {
			g.handle(ctx, handler, ev)
		}
	}
}

func (g *Guard) handle(ctx context.Context, handler Handler, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error(ctx, "handler panic", "update_id", ev.UpdateID, "panic", fmt.Sprint(p))
		}
	}()
	handler(ctx, ev)
}

func (g *Guard) sleep(ctx context.Context) {
	t := time.NewTimer(g.conflictBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
