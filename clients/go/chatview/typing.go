package chatview

import (
	"sync"
	"time"
)

// defaultIdle is how long after the last keystroke a typing burst ends.
const defaultIdle = 2 * time.Second

// Emitter sends typing signals to the server, usually over the
// realtime connection.
type Emitter interface {
	StartTyping() error
	StopTyping() error
}

// Debouncer turns raw keystrokes into typing bursts: one start-typing
// when typing begins, one stop-typing after the idle window with no
// keystrokes. Continuous typing emits nothing extra.
type Debouncer struct {
	mu      sync.Mutex
	emitter Emitter
	idle    time.Duration
	timer   *time.Timer
	active  bool
}

// NewDebouncer creates a debouncer with the default idle window.
func NewDebouncer(emitter Emitter) *Debouncer {
	return NewDebouncerIdle(emitter, defaultIdle)
}

// NewDebouncerIdle creates a debouncer with a custom idle window.
func NewDebouncerIdle(emitter Emitter, idle time.Duration) *Debouncer {
	return &Debouncer{emitter: emitter, idle: idle}
}

// Keystroke records one keystroke. The first keystroke of a burst
// emits start-typing; every keystroke pushes the stop timer out.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		d.active = true
		d.emitter.StartTyping()
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, d.expire)
}

// expire fires when the idle window elapses with no keystrokes.
func (d *Debouncer) expire() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return
	}
	d.active = false
	d.emitter.StopTyping()
}

// Clear ends the burst immediately. Called when the message is sent or
// the composer is emptied.
func (d *Debouncer) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.active {
		d.active = false
		d.emitter.StopTyping()
	}
}

// Active reports whether a typing burst is in progress.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}
