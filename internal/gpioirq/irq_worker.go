// internal/gpioirq/irq_worker.go
package gpioirq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"typecmux-go/internal/halcore"
	"typecmux-go/internal/logx"
)

var ErrDuplicate = errors.New("gpioirq: id already registered")

// Worker moves edge interrupts out of ISR context. Handlers run on the
// worker goroutine, one at a time, in arrival order.
type Worker struct {
	// Written by ISR; MUST NOT block the ISR:
	isrQ    chan *watch
	stopped chan struct{}

	mu     sync.RWMutex
	inputs map[string]*watch

	drops uint32 // ISR drop counter
}

type watch struct {
	id        string
	pin       halcore.IRQPin
	fn        func()
	pending   atomic.Bool // queued and not yet serviced
	cancelled atomic.Bool
}

func New(isrBuf int) *Worker {
	if isrBuf <= 0 {
		isrBuf = 16
	}
	return &Worker{
		isrQ:    make(chan *watch, isrBuf),
		stopped: make(chan struct{}),
		inputs:  map[string]*watch{},
	}
}

// Start runs the worker until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case wh := <-w.isrQ:
				wh.pending.Store(false)
				if !wh.cancelled.Load() {
					wh.fn()
				}
			}
		}
	}()
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.stopped }

// Register arms pin for edge and calls fn from the worker for each edge.
// Edges arriving while a call is already queued are coalesced.
func (w *Worker) Register(id string, pin halcore.IRQPin, edge halcore.Edge, fn func()) (func(), error) {
	if edge == halcore.EdgeNone {
		return func() {}, nil
	}
	w.mu.Lock()
	if _, ok := w.inputs[id]; ok {
		w.mu.Unlock()
		return nil, ErrDuplicate
	}
	wh := &watch{id: id, pin: pin, fn: fn}
	w.inputs[id] = wh
	w.mu.Unlock()

	if err := pin.ConfigureInput(halcore.PullUp); err != nil {
		w.remove(id)
		return nil, err
	}
	// ISR handler: flag + non-blocking channel send.
	handler := func() {
		if wh.pending.Swap(true) {
			return
		}
		select {
		case w.isrQ <- wh:
		default:
			wh.pending.Store(false)
			atomic.AddUint32(&w.drops, 1)
		}
	}
	if err := pin.SetIRQ(edge, handler); err != nil {
		w.remove(id)
		return nil, err
	}
	logx.For(logx.ComponentIRQ).Debug("irq armed", "id", id, "pin", pin.Number(), "edge", halcore.EdgeToString(edge))

	return func() {
		wh.cancelled.Store(true)
		_ = pin.ClearIRQ()
		w.remove(id)
	}, nil
}

func (w *Worker) remove(id string) {
	w.mu.Lock()
	delete(w.inputs, id)
	w.mu.Unlock()
}

func (w *Worker) ISRDrops() uint32 { return atomic.LoadUint32(&w.drops) }
