package engine

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Run executes the pipeline on the calling goroutine until ctx is
// cancelled. Cancellation is observed once per cycle; on return every
// virtual controller is detached.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("pipeline started",
		"interval", e.opt.PollInterval,
		"graceCycles", e.opt.GraceCycles)
	defer e.detachAll()
	defer e.log.Info("pipeline stopped")

	e.lastFreq = time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := time.Now()
		e.cycle(start)

		next := start.Add(e.opt.PollInterval)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		}
	}
}

func (e *Engine) cycle(start time.Time) {
	e.runStage(StageEnumerate, e.enumerate)
	e.runStage(StageRead, e.read)
	e.runStage(StageMap, e.mapStage)
	e.runStage(StageCombine, e.combine)
	e.runStage(StageOutput, e.output)
	e.runStage(StageReadback, e.readbackStage)
	e.updateFrequency(start)
}

// runStage guards one stage against a should-be-unreachable panic:
// report and continue, never tear the loop down for one bad cycle.
func (e *Engine) runStage(stage Stage, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.reportError(stage, "", "stage panicked", fmt.Errorf("%v", r))
		}
	}()
	fn()
}

// updateFrequency maintains the measured loop frequency as a moving
// average over the last ~1000 cycles and publishes it at a display
// cadence.
func (e *Engine) updateFrequency(now time.Time) {
	n := len(e.cycleTimes)
	oldest := e.cycleTimes[e.cycleIdx]
	e.cycleTimes[e.cycleIdx] = now
	e.cycleIdx = (e.cycleIdx + 1) % n
	e.cycleCount++

	window := int(e.cycleCount)
	if window > n {
		window = n
	}
	if window < 2 {
		return
	}
	var span time.Duration
	if int(e.cycleCount) > n {
		span = now.Sub(oldest)
	} else {
		span = now.Sub(e.cycleTimes[0])
	}
	if span <= 0 {
		return
	}
	hz := float64(window-1) / span.Seconds()
	e.freqBits.Store(math.Float64bits(hz))

	if now.Sub(e.lastFreq) >= 250*time.Millisecond {
		e.lastFreq = now
		e.events.emitFrequency(hz)
	}
}
