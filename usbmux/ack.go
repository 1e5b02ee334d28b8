package usbmux

import (
	"context"
	"time"
)

// DefaultAckTimeout bounds the pause after a mux that asked for an ack.
const DefaultAckTimeout = 100 * time.Millisecond

// AckGate carries asynchronous completions to a chain walk paused after a
// mux that asked for an ack, so the next mux is not set until the first
// has settled or the timeout passes. Signal is safe from IRQ context.
type AckGate struct {
	chs []chan struct{}
}

func NewAckGate(ports int) *AckGate {
	g := &AckGate{chs: make([]chan struct{}, ports)}
	for i := range g.chs {
		g.chs[i] = make(chan struct{}, 1)
	}
	return g
}

// Signal records a completion on port. Out-of-range ports are ignored.
func (g *AckGate) Signal(port int) {
	if g == nil || port < 0 || port >= len(g.chs) {
		return
	}
	select {
	case g.chs[port] <- struct{}{}:
	default:
	}
}

// drain drops a completion left over from an earlier walk.
func (g *AckGate) drain(port int) {
	if g == nil || port < 0 || port >= len(g.chs) {
		return
	}
	select {
	case <-g.chs[port]:
	default:
	}
}

// wait blocks until port is signalled, d passes or ctx ends. It reports
// whether the signal arrived.
func (g *AckGate) wait(ctx context.Context, port int, d time.Duration) bool {
	if g == nil || port < 0 || port >= len(g.chs) {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-g.chs[port]:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}
