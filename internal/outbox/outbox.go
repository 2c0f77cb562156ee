// Package outbox runs side effects that must happen after a database
// commit without being able to undo it: websocket broadcasts and broker
// notifications.  Jobs run on a bounded queue and every outcome is
// counted so lost notifications show up in /ops/outbox instead of
// disappearing into a log line.
package outbox

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Mirror receives a copy of every counter increment, for example to
// publish the counts somewhere shared across replicas.
type Mirror interface {
	Incr(ctx context.Context, dispatcher, field string)
}

// Options tune a Dispatcher.
type Options struct {
	QueueSize  int           // pending jobs before Enqueue starts dropping, 1024 when zero
	Workers    int           // concurrent jobs, 1 when zero; one worker keeps jobs in order
	JobTimeout time.Duration // per-job deadline, 10s when zero
	Mirror     Mirror        // optional
}

// Stats is a snapshot of a dispatcher's counters.
type Stats struct {
	Name      string `json:"name"`
	Queued    int    `json:"queued"`
	Enqueued  uint64 `json:"enqueued"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

type job struct {
	kind string
	run  func(ctx context.Context) error
}

// Dispatcher executes post-commit jobs.
type Dispatcher struct {
	name    string
	jobs    chan job
	timeout time.Duration
	mirror  Mirror

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	enqueued, succeeded, failed, dropped atomic.Uint64
}

// New starts a dispatcher with its workers running.
func New(name string, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		name:    name,
		jobs:    make(chan job, opts.QueueSize),
		timeout: opts.JobTimeout,
		mirror:  opts.Mirror,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Name returns the dispatcher's name.
func (d *Dispatcher) Name() string { return d.name }

// Enqueue schedules run and reports whether it was accepted.  It never
// blocks: a full queue or a closed dispatcher drops the job and counts it.
func (d *Dispatcher) Enqueue(kind string, run func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.closed {
		select {
		case d.jobs <- job{kind: kind, run: run}:
			d.count(&d.enqueued, "enqueued")
			return true
		default:
		}
	}
	d.count(&d.dropped, "dropped")
	log.Printf("outbox[%s]: dropped %s job", d.name, kind)
	return false
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.count(&d.failed, "failed")
			log.Printf("outbox[%s]: %s job panicked: %v", d.name, j.kind, r)
		}
	}()
	if err := j.run(ctx); err != nil {
		d.count(&d.failed, "failed")
		log.Printf("outbox[%s]: %s job failed: %v", d.name, j.kind, err)
		return
	}
	d.count(&d.succeeded, "succeeded")
}

func (d *Dispatcher) count(c *atomic.Uint64, field string) {
	c.Add(1)
	if d.mirror != nil {
		d.mirror.Incr(context.Background(), d.name, field)
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Name:      d.name,
		Queued:    len(d.jobs),
		Enqueued:  d.enqueued.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// Close stops accepting jobs and waits for queued ones to finish or for
// ctx to expire, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
