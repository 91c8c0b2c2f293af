package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Phase labels a stage of a run. Phases always occur in declaration order.
type Phase string

const (
	PhaseNames    Phase = "resolving names"
	PhaseDaily    Phase = "fetching daily bars"
	PhaseWeekly   Phase = "resampling weekly bars"
	PhaseFees     Phase = "looking up fees"
	PhaseAssemble Phase = "assembling indicators"
	PhaseDone     Phase = "done"
)

// Phase fraction bands.
const (
	fracNames     = 0.01
	fracDailyFrom = 0.05
	fracDailyTo   = 0.55
	fracWeekly    = 0.58
	fracFeesFrom  = 0.62
	fracFeesTo    = 0.92
	fracAssemble  = 0.94
	fracDone      = 1.0
)

// Progress is one update delivered to a Sink.
type Progress struct {
	Fraction float64
	Phase    Phase
	Message  string
}

// Sink receives progress updates on a dedicated goroutine. A slow sink only
// causes intermediate updates to be skipped.
type Sink func(Progress)

// emitter forwards updates to a sink without ever blocking the caller.
// It holds at most one pending update; a newer update replaces it.
type emitter struct {
	sink Sink

	mu     sync.Mutex
	max    float64
	closed bool
	ch     chan Progress
	done   chan struct{}
}

func newEmitter(sink Sink) *emitter {
	e := &emitter{sink: sink}
	if sink == nil {
		return e
	}
	e.ch = make(chan Progress, 1)
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		for p := range e.ch {
			sink(p)
		}
	}()
	return e
}

// emit queues an update. Fractions never decrease across calls.
func (e *emitter) emit(fraction float64, phase Phase, msg string) {
	if e.sink == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if fraction < e.max {
		fraction = e.max
	}
	if fraction > 1 {
		fraction = 1
	}
	e.max = fraction

	p := Progress{Fraction: fraction, Phase: phase, Message: msg}
	select {
	case e.ch <- p:
	default:
		select {
		case <-e.ch:
		default:
		}
		e.ch <- p
	}
}

// close flushes the pending update and waits for the sink to return.
func (e *emitter) close() {
	if e.sink == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()
	<-e.done
}

// phaseCounter maps task completions within a phase onto a fraction band,
// emitting every `every` completions and at the last one.
type phaseCounter struct {
	e        *emitter
	phase    Phase
	from, to float64
	total    int
	every    int
	n        atomic.Int64
}

func (c *phaseCounter) tick() {
	n := int(c.n.Add(1))
	if c.total == 0 || (n%c.every != 0 && n != c.total) {
		return
	}
	frac := c.from + (c.to-c.from)*float64(n)/float64(c.total)
	c.e.emit(frac, c.phase, fmt.Sprintf("%s %d/%d", c.phase, n, c.total))
}
