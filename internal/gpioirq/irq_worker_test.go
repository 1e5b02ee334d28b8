// internal/gpioirq/irq_worker_test.go

package gpioirq

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"typecmux-go/internal/halcore"
)

// fakeIRQPin implements halcore.IRQPin with minimal behaviour for tests.
type fakeIRQPin struct {
	mu      sync.Mutex
	level   bool
	handler func()
	number  int
	pull    halcore.Pull
}

func (p *fakeIRQPin) ConfigureInput(pull halcore.Pull) error { p.pull = pull; return nil }
func (p *fakeIRQPin) Get() bool                              { p.mu.Lock(); defer p.mu.Unlock(); return p.level }
func (p *fakeIRQPin) Number() int                            { return p.number }
func (p *fakeIRQPin) SetIRQ(_ halcore.Edge, h func()) error  { p.mu.Lock(); p.handler = h; p.mu.Unlock(); return nil }
func (p *fakeIRQPin) ClearIRQ() error                        { p.mu.Lock(); p.handler = nil; p.mu.Unlock(); return nil }
func (p *fakeIRQPin) fire(level bool) {
	p.mu.Lock()
	p.level = level
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}

func TestWorkerRunsHandlerOffISR(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(4)
	w.Start(ctx)

	pin := &fakeIRQPin{number: 5}
	called := make(chan struct{}, 4)
	stop, err := w.Register("xbar0", pin, halcore.EdgeFalling, func() { called <- struct{}{} })
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer stop()
	if pin.pull != halcore.PullUp {
		t.Fatal("alert lines are open drain and need a pull-up")
	}

	pin.fire(false)
	select {
	case <-called:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for handler")
	}
}

func TestWorkerCoalescesBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(4)
	gate := make(chan struct{})
	var calls atomic.Int32
	pin := &fakeIRQPin{number: 7}
	stop, err := w.Register("xbar1", pin, halcore.EdgeFalling, func() {
		calls.Add(1)
		<-gate
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer stop()

	// Worker not started yet: every edge after the first is coalesced.
	for i := 0; i < 10; i++ {
		pin.fire(false)
	}
	if w.ISRDrops() != 0 {
		t.Fatalf("coalesced edges must not count as drops, got %d", w.ISRDrops())
	}
	w.Start(ctx)
	gate <- struct{}{}

	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one serviced edge, got %d", got)
	}
}

func TestRegisterDuplicateAndCancel(t *testing.T) {
	w := New(1)
	pin := &fakeIRQPin{}
	stop, err := w.Register("a", pin, halcore.EdgeFalling, func() {})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Register("a", pin, halcore.EdgeFalling, func() {}); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	stop()
	if pin.handler != nil {
		t.Fatal("cancel must clear the pin IRQ")
	}
	if _, err := w.Register("a", pin, halcore.EdgeFalling, func() {}); err != nil {
		t.Fatalf("re-register after cancel: %v", err)
	}
}
