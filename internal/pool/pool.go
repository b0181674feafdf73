// Package pool provides a bounded-concurrency task executor used to throttle
// fan-out to slow external agent calls. It limits how many tasks are in
// flight at once, not CPU parallelism: tasks are caller-supplied units of
// work, typically blocked on network I/O.
package pool

import (
	"log"
	"sync"
	"time"
)

// Wait-loop bounds. The safety cap keeps WaitForCompletion from hanging
// forever if a task never returns; hitting it is logged and treated as done.
const (
	defaultPollInterval = 25 * time.Millisecond
	maxWaitIterations   = 12000 // 5 minutes at the default interval
)

// Stats is a point-in-time snapshot used for backpressure and progress
// reporting.
type Stats struct {
	Active int `json:"active"`
	Queued int `json:"queued"`
	Max    int `json:"max"`
}

// Pool caps the number of concurrently running tasks at a configured maximum,
// queueing excess work in FIFO order.
type Pool struct {
	mu     sync.Mutex
	max    int
	active int
	queue  []func()

	pollInterval time.Duration
	logf         func(format string, args ...any)
}

// New creates a pool that runs at most max tasks concurrently. A max below 1
// is treated as 1.
func New(max int) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{
		max:          max,
		pollInterval: defaultPollInterval,
		logf:         log.Printf,
	}
}

// SetLogger replaces the pool's log function. Used by tests to capture the
// wait-cap warning.
func (p *Pool) SetLogger(logf func(format string, args ...any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if logf != nil {
		p.logf = logf
	}
}

// Execute enqueues a task. If the pool is below capacity the task starts
// immediately; the active count is incremented under the lock before dispatch
// so concurrent submissions never overshoot max. At capacity, the task joins
// a FIFO queue and starts when a slot frees up.
//
// A task's failure is its own business: panics are recovered so one bad task
// never blocks the slot-release path, and outcomes are observed only through
// whatever channels the task itself closes over.
func (p *Pool) Execute(task func()) {
	p.mu.Lock()
	if p.active < p.max {
		p.active++
		p.mu.Unlock()
		go p.run(task)
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
}

func (p *Pool) run(task func()) {
	defer p.finish()
	defer func() {
		if r := recover(); r != nil {
			p.logf("pool: task panic recovered: %v", r)
		}
	}()
	task()
}

// finish releases the task's slot and schedules queue draining on a fresh
// goroutine, never synchronously on the completing task's stack.
func (p *Pool) finish() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	go p.drain()
}

func (p *Pool) drain() {
	for {
		p.mu.Lock()
		if p.active >= p.max || len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.active++
		p.mu.Unlock()
		go p.run(task)
	}
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Active: p.active, Queued: len(p.queue), Max: p.max}
}

// WaitForCompletion blocks until both the active and queued counts reach
// zero, polling at a bounded interval. The iteration cap guards against a
// stuck task: exceeding it logs a warning and returns instead of hanging.
func (p *Pool) WaitForCompletion() {
	for i := 0; i < maxWaitIterations; i++ {
		s := p.Stats()
		if s.Active == 0 && s.Queued == 0 {
			return
		}
		time.Sleep(p.pollInterval)
	}
	s := p.Stats()
	p.logf("pool: WaitForCompletion gave up after %d iterations (active=%d queued=%d)",
		maxWaitIterations, s.Active, s.Queued)
}
