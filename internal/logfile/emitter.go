package logfile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var eventNames = []string{
	"added_tasks",
	"task_started",
	"generator_fired",
	"task_finished",
	"cycle_end",
}

// Emitter writes synthetic cycles to an event log at a fixed rate. It stands
// in for a real producer when exercising the server.
type Emitter struct {
	writer          *Writer
	limiter         *rate.Limiter
	recordsPerCycle int
	logger          *zap.Logger
	now             func() time.Time
}

// NewEmitter creates an Emitter writing cyclesPerSecond cycles of
// recordsPerCycle events each.
func NewEmitter(w *Writer, cyclesPerSecond float64, recordsPerCycle int, logger *zap.Logger) *Emitter {
	if recordsPerCycle < 1 {
		recordsPerCycle = 1
	}
	return &Emitter{
		writer:          w,
		limiter:         rate.NewLimiter(rate.Limit(cyclesPerSecond), 1),
		recordsPerCycle: recordsPerCycle,
		logger:          logger,
		now:             time.Now,
	}
}

// Run writes cycles until count cycles are written (count <= 0 means no
// limit) or ctx is cancelled. It returns the number of cycles written.
// Cancellation is not reported as an error.
func (e *Emitter) Run(ctx context.Context, count int) (int, error) {
	written := 0
	for count <= 0 || written < count {
		if err := e.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return written, nil
			}
			return written, fmt.Errorf("rate limiter: %w", err)
		}

		if err := e.writer.WriteCycle(e.cycle(written)); err != nil {
			return written, err
		}
		if err := e.writer.Flush(); err != nil {
			if errors.Is(err, ErrClosed) {
				return written, nil
			}
			return written, fmt.Errorf("flushing cycle: %w", err)
		}
		written++

		e.logger.Debug("cycle written",
			zap.Int("cycle", written),
			zap.Int("events", e.recordsPerCycle),
		)
	}
	return written, nil
}

func (e *Emitter) cycle(index int) []Event {
	now := e.now()
	events := make([]Event, e.recordsPerCycle)
	for i := range events {
		events[i] = Event{
			Name: eventNames[(index+i)%len(eventNames)],
			Sec:  now.Unix(),
			Usec: int64(now.Nanosecond() / 1000),
			Args: []any{uint64(index), uint64(i)},
		}
	}
	return events
}
