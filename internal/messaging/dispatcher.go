package messaging

import (
	"errors"
	"sync"
)

// ErrDispatcherClosed is returned by Submit after Close has been called.
var ErrDispatcherClosed = errors.New("messaging: dispatcher closed")

// defaultQueueSize bounds each per-key queue. A device that floods the
// broker faster than its handler drains gets its excess dropped by the
// submitter rather than growing memory without bound.
const defaultQueueSize = 64

// Dispatcher runs tasks serially per key while allowing tasks for
// different keys to run in parallel.
//
// The protocol requires per-device ordering (an online announcement and
// the acknowledgement that follows must not race each other) but no
// ordering across devices. Each key gets its own queue and worker
// goroutine, created lazily on first Submit and kept for the process
// lifetime; device fleets are small enough that idle workers are cheaper
// than reaping logic.
type Dispatcher struct {
	mu        sync.Mutex
	queues    map[string]chan func()
	closed    bool
	queueSize int
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given per-key queue
// capacity. A non-positive size falls back to the default.
func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		queues:    make(map[string]chan func()),
		queueSize: queueSize,
	}
}

// Submit enqueues a task for the key. Tasks submitted for the same key
// run in submission order; tasks for different keys run concurrently.
//
// Returns ErrDispatcherClosed after Close, or an error if the key's
// queue is full.
func (d *Dispatcher) Submit(key string, task func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	queue, ok := d.queues[key]
	if !ok {
		queue = make(chan func(), d.queueSize)
		d.queues[key] = queue
		d.wg.Add(1)
		go d.worker(queue)
	}

	// The send stays under the lock so Close cannot close the channel
	// mid-send. It never blocks: the queue is buffered and the default
	// case rejects when full.
	select {
	case queue <- task:
		return nil
	default:
		return errors.New("messaging: queue full for key " + key)
	}
}

// worker drains a single key's queue until it is closed.
func (d *Dispatcher) worker(queue chan func()) {
	defer d.wg.Done()
	for task := range queue {
		task()
	}
}

// Close stops accepting new tasks, lets queued tasks finish, and waits
// for all workers to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// KeyCount returns the number of active per-key queues.
func (d *Dispatcher) KeyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
