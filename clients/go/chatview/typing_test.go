package chatview

import (
	"sync"
	"testing"
	"time"
)

type recordingEmitter struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (e *recordingEmitter) StartTyping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return nil
}

func (e *recordingEmitter) StopTyping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return nil
}

func (e *recordingEmitter) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts, e.stops
}

func TestDebouncerSingleBurst(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncerIdle(em, 30*time.Millisecond)

	// Continuous typing: many keystrokes, one burst
	for i := 0; i < 5; i++ {
		d.Keystroke()
		time.Sleep(5 * time.Millisecond)
	}

	starts, stops := em.counts()
	if starts != 1 || stops != 0 {
		t.Fatalf("mid-burst: expected 1 start / 0 stops, got %d / %d", starts, stops)
	}

	// Idle window elapses
	time.Sleep(60 * time.Millisecond)
	starts, stops = em.counts()
	if starts != 1 || stops != 1 {
		t.Fatalf("after idle: expected 1 start / 1 stop, got %d / %d", starts, stops)
	}
	if d.Active() {
		t.Fatal("burst should have ended")
	}
}

func TestDebouncerKeystrokeExtendsBurst(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncerIdle(em, 40*time.Millisecond)

	d.Keystroke()
	time.Sleep(25 * time.Millisecond)
	d.Keystroke() // inside the window; pushes the stop out
	time.Sleep(25 * time.Millisecond)

	if _, stops := em.counts(); stops != 0 {
		t.Fatal("stop fired even though typing continued")
	}

	time.Sleep(40 * time.Millisecond)
	if _, stops := em.counts(); stops != 1 {
		t.Fatal("stop never fired after typing ended")
	}
}

func TestDebouncerNewBurstAfterIdle(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncerIdle(em, 20*time.Millisecond)

	d.Keystroke()
	time.Sleep(50 * time.Millisecond)
	d.Keystroke()
	time.Sleep(50 * time.Millisecond)

	starts, stops := em.counts()
	if starts != 2 || stops != 2 {
		t.Fatalf("expected 2 bursts, got %d starts / %d stops", starts, stops)
	}
}

func TestDebouncerClearStopsImmediately(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncerIdle(em, time.Hour) // never expires on its own

	d.Keystroke()
	d.Clear() // message sent

	starts, stops := em.counts()
	if starts != 1 || stops != 1 {
		t.Fatalf("expected immediate stop, got %d starts / %d stops", starts, stops)
	}

	// Clear while idle emits nothing
	d.Clear()
	if _, stops := em.counts(); stops != 1 {
		t.Fatal("redundant clear emitted a stop")
	}
}
