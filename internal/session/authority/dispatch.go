package authority

import (
	"log/slog"
	"sync"
)

// dispatcher runs submitted tasks one at a time, in submission order, on
// whichever goroutine finds it idle. A task submitted from inside a running
// task is queued and runs after it, so observers may call back into the store.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	logger  *slog.Logger
}

func (d *dispatcher) submit(task func()) {
	d.mu.Lock()
	d.queue = append(d.queue, task)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.run(next)
		d.mu.Lock()
	}
	d.running = false
	d.mu.Unlock()
}

func (d *dispatcher) run(task func()) {
	defer func() {
		if r := recover(); r != nil && d.logger != nil {
			d.logger.Error("identity observer panicked", "panic", r)
		}
	}()
	task()
}
