package emul

import (
	"sync"

	"typecmux-go/internal/halcore"
)

// Line is an active-low, wired-OR interrupt line shared by any number of
// emulated chips. It implements halcore.IRQPin.
type Line struct {
	mu      sync.Mutex
	number  int
	holders map[any]struct{}
	edge    halcore.Edge
	handler func()
}

func NewLine(number int) *Line {
	return &Line{number: number, holders: map[any]struct{}{}}
}

// Drive asserts (pulls low) or releases the line on behalf of src.
// Edge handlers run synchronously on the caller's goroutine.
func (l *Line) Drive(src any, assert bool) {
	l.mu.Lock()
	before := len(l.holders) > 0
	if assert {
		l.holders[src] = struct{}{}
	} else {
		delete(l.holders, src)
	}
	after := len(l.holders) > 0
	h, edge := l.handler, l.edge
	l.mu.Unlock()

	if h == nil || before == after {
		return
	}
	if after && (edge == halcore.EdgeFalling || edge == halcore.EdgeBoth) {
		h()
	}
	if !after && (edge == halcore.EdgeRising || edge == halcore.EdgeBoth) {
		h()
	}
}

// Asserted reports whether any source holds the line low.
func (l *Line) Asserted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.holders) > 0
}

func (l *Line) ConfigureInput(halcore.Pull) error { return nil }
func (l *Line) Get() bool                         { return !l.Asserted() }
func (l *Line) Number() int                       { return l.number }

func (l *Line) SetIRQ(edge halcore.Edge, handler func()) error {
	l.mu.Lock()
	l.edge, l.handler = edge, handler
	l.mu.Unlock()
	return nil
}

func (l *Line) ClearIRQ() error {
	l.mu.Lock()
	l.edge, l.handler = halcore.EdgeNone, nil
	l.mu.Unlock()
	return nil
}
