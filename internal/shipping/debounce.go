package shipping

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is the pause in postcode input before a lookup runs.
const DefaultDebounceWindow = 500 * time.Millisecond

// Debouncer runs only the last function triggered within Window.
// The zero value uses DefaultDebounceWindow.
type Debouncer struct {
	Window time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// Trigger schedules fn to run after the window, replacing any pending call.
// fn runs on its own goroutine. Triggers after Stop are dropped.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	window := d.Window
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(window, func() {
		d.mu.Lock()
		current := gen == d.gen && !d.stopped
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Stop cancels the pending call and disables the Debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
}
