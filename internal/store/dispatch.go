package store

import "sync"

// Dispatcher runs queued callbacks one at a time, in enqueue order, on its
// own goroutine. Backends use it so a slow subscriber never blocks a writer.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	signal chan struct{}
	done   chan struct{}
	closed bool
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue schedules fn. It is a no-op once the dispatcher is closed.
func (d *Dispatcher) Enqueue(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Close drops pending callbacks and stops the goroutine. A callback that is
// already running finishes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.queue = nil
	close(d.done)
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.signal:
		}

		for {
			d.mu.Lock()
			if d.closed || len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()

			fn()
		}
	}
}
