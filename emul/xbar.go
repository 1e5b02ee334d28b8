package emul

import "sync"

// Xbar wire protocol, shared with drivers/xbarmux.
const (
	XbarRegIntStatus = 0x01
	XbarRegExtStatus = 0x02
	XbarRegCommand   = 0x10
	XbarRegMailbox   = 0x20
	XbarRegPortCtrl  = 0x30

	XbarIntReadyChanged = 1 << 0
	XbarIntCmd          = 1 << 1
	XbarIntErr          = 1 << 2
	XbarIntMailbox      = 1 << 3
	XbarIntReadyLevel   = 1 << 7

	XbarCodeIdle       = 0
	XbarCodeInProgress = 1
	XbarCodeComplete   = 2
	XbarCodeFailed     = 3

	XbarMailboxLen = 16
	XbarPorts      = 4
)

// XbarCommand is one decoded command block.
type XbarCommand struct {
	Port, Mode, Flags, Speed byte
}

// Xbar emulates a command/status crossbar chip with up to four ports
// behind one address. Latched interrupt bits clear on read of INT_STATUS;
// the mailbox bit stays up until the mailbox is drained.
type Xbar struct {
	mu       sync.Mutex
	line     *Line
	ready    bool
	latched  byte
	codes    [XbarPorts]byte
	mailbox  [XbarMailboxLen]byte
	mbFull   bool
	portCtrl byte
	cmds     []XbarCommand
	asleep   int
	failNext int

	// AutoComplete reports Complete for every command as soon as it lands.
	AutoComplete bool
}

// NewXbar returns a chip wired to line (may be nil). ready sets the
// initial crossbar state.
func NewXbar(line *Line, ready bool) *Xbar {
	return &Xbar{line: line, ready: ready}
}

func (x *Xbar) asserted() bool { return x.latched != 0 || x.mbFull }

// update must be called without x.mu held.
func (x *Xbar) update() {
	if x.line == nil {
		return
	}
	x.mu.Lock()
	a := x.asserted()
	x.mu.Unlock()
	x.line.Drive(x, a)
}

func (x *Xbar) Tx(w, r []byte) error {
	err := x.tx(w, r)
	x.update()
	return err
}

func (x *Xbar) tx(w, r []byte) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.asleep > 0 {
		x.asleep--
		return ErrNack
	}
	if x.failNext > 0 {
		x.failNext--
		return ErrNack
	}
	if len(w) == 0 {
		return ErrNack
	}
	switch w[0] {
	case XbarRegIntStatus:
		if len(r) > 0 {
			v := x.latched
			if x.mbFull {
				v |= XbarIntMailbox
			}
			if x.ready {
				v |= XbarIntReadyLevel
			}
			r[0] = v
			x.latched = 0
		}
	case XbarRegExtStatus:
		if len(r) > 0 {
			var v byte
			for p, c := range x.codes {
				v |= c << (2 * p)
			}
			r[0] = v
		}
	case XbarRegCommand:
		if len(w) != 6 || w[1] != 4 || int(w[2]) >= XbarPorts {
			return ErrNack
		}
		c := XbarCommand{Port: w[2], Mode: w[3], Flags: w[4], Speed: w[5]}
		x.cmds = append(x.cmds, c)
		switch {
		case !x.ready:
			x.codes[c.Port] = XbarCodeFailed
			x.latched |= XbarIntErr
		case x.AutoComplete:
			x.codes[c.Port] = XbarCodeComplete
			x.latched |= XbarIntCmd
		default:
			x.codes[c.Port] = XbarCodeInProgress
		}
	case XbarRegMailbox:
		n := copy(r, x.mailbox[:])
		if n > 0 {
			x.mailbox = [XbarMailboxLen]byte{}
			x.mbFull = false
		}
	case XbarRegPortCtrl:
		if len(w) > 1 {
			x.portCtrl = w[1]
		}
		if len(r) > 0 {
			r[0] = x.portCtrl
		}
	default:
		return ErrNack
	}
	return nil
}

// SetReady changes the crossbar power state and latches the toggle.
func (x *Xbar) SetReady(ready bool) {
	x.mu.Lock()
	if x.ready != ready {
		x.ready = ready
		x.latched |= XbarIntReadyChanged
	}
	x.mu.Unlock()
	x.update()
}

// Complete reports the pending command on port as done.
func (x *Xbar) Complete(port int) { x.finish(port, XbarCodeComplete, XbarIntCmd) }

// Fail reports the pending command on port as failed.
func (x *Xbar) Fail(port int) { x.finish(port, XbarCodeFailed, XbarIntErr) }

func (x *Xbar) finish(port int, code, bit byte) {
	x.mu.Lock()
	x.codes[port] = code
	x.latched |= bit
	x.mu.Unlock()
	x.update()
}

// PostMailbox fills the mailbox and raises its interrupt.
func (x *Xbar) PostMailbox(data []byte) {
	x.mu.Lock()
	copy(x.mailbox[:], data)
	x.mbFull = true
	x.mu.Unlock()
	x.update()
}

// Commands returns the command blocks received so far.
func (x *Xbar) Commands() []XbarCommand {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]XbarCommand(nil), x.cmds...)
}

func (x *Xbar) PortCtrl() byte {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.portCtrl
}

func (x *Xbar) Asserted() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.asserted()
}

func (x *Xbar) Sleep(n int) {
	x.mu.Lock()
	x.asleep = n
	x.mu.Unlock()
}

func (x *Xbar) FailNext(n int) {
	x.mu.Lock()
	x.failNext = n
	x.mu.Unlock()
}
