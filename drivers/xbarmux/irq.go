package xbarmux

import (
	"context"
	"sync"

	"typecmux-go/errcode"
	"typecmux-go/internal/gpioirq"
	"typecmux-go/internal/halcore"
	"typecmux-go/usbmux"
)

// HandleInterrupt services every chip in the family once. If the line is
// still asserted afterwards it re-arms itself through the Rearm scheduler
// instead of looping. It ends with the fixed-state pass.
func (f *Family) HandleInterrupt() {
	f.mu.Lock()
	var done []Completion
	for _, c := range f.chips {
		done = f.serviceChipLocked(c, done)
	}
	if f.cfg.IRQ != nil && !f.cfg.IRQ.Get() {
		f.cfg.Rearm.Call(f.cfg.RearmDelay)
	}
	f.fixedPassLocked()
	f.mu.Unlock()

	f.notify(done)
}

func (f *Family) serviceChipLocked(c *chip, done []Completion) []Completion {
	st, err := c.readByte(regIntStatus)
	if err != nil {
		f.log.Warn("int status read failed", "addr", c.addr, "err", err)
		return done
	}
	return f.handleStatusLocked(c, st, done)
}

// handleStatusLocked acts on an INT_STATUS value already read from c.
func (f *Family) handleStatusLocked(c *chip, st byte, done []Completion) []Completion {
	if st&intReadyChanged != 0 {
		ready := st&intReadyLevel != 0
		for _, h := range c.insts {
			f.states[h].XbarReady = ready
		}
		f.log.Debug("crossbar ready changed", "addr", c.addr, "ready", ready)
	}
	if st&(intCmd|intErr) != 0 {
		ext, err := c.readByte(regExtStatus)
		if err != nil {
			f.log.Warn("ext status read failed", "addr", c.addr, "err", err)
		} else {
			for _, h := range c.insts {
				done = f.completeLocked(h, extCode(ext, f.insts[h].cfg.ChipPort), done)
			}
		}
	}
	if st&intMailbox != 0 {
		// Draining is what clears the condition; the payload is unused.
		if _, err := c.read(regMailbox, mailboxLen); err != nil {
			f.log.Warn("mailbox drain failed", "addr", c.addr, "err", err)
		}
	}
	return done
}

func (f *Family) completeLocked(h Handle, code Code, done []Completion) []Completion {
	st := &f.states[h]
	if !st.InProgress {
		return done
	}
	port := f.insts[h].cfg.Port
	switch code {
	case CodeComplete:
		st.Current = st.Next
		st.InProgress = false
		return append(done, Completion{Port: port, Handle: h, State: st.Current})
	case CodeFailed:
		st.InProgress = false
		f.log.Error("mux command failed", "port", port, "want", st.Next.String(), "have", st.Current.String())
		return append(done, Completion{
			Port:   port,
			Handle: h,
			State:  st.Current,
			Err:    errcode.Wrap(errcode.Failed, "set", port, nil),
		})
	}
	return done
}

// fixedPassLocked drives idle, ready instances that have a fixed state
// back to it.
func (f *Family) fixedPassLocked() {
	for i := range f.states {
		f.fixedLocked(Handle(i))
	}
}

func (f *Family) fixedLocked(h Handle) {
	st := &f.states[h]
	if st.Fixed == nil || !st.XbarReady || st.InProgress || st.Current == *st.Fixed {
		return
	}
	if _, err := f.setLocked(h, *st.Fixed); err != nil {
		f.log.Warn("fixed state set failed", "port", f.insts[h].cfg.Port, "err", err)
	}
}

// RunFixedPass applies fixed states outside of an interrupt.
func (f *Family) RunFixedPass() {
	f.mu.Lock()
	f.fixedPassLocked()
	f.mu.Unlock()
}

func (f *Family) resetAllowed() bool {
	p := f.cfg.Power
	return !p.IsHardOff() || p.TransitioningToOn()
}

func (f *Family) resetLocked(h Handle) {
	f.states[h].InProgress = false
	f.states[h].Current = usbmux.None
	f.fixedLocked(h)
}

// ChipsetReset forgets in-flight commands on every instance after a host
// reset and re-applies fixed states. It does nothing unless the host is on
// or on its way there.
func (f *Family) ChipsetReset() error {
	if !f.resetAllowed() {
		return nil
	}
	f.mu.Lock()
	for i := range f.states {
		f.resetLocked(Handle(i))
	}
	f.mu.Unlock()
	return nil
}

// chipsetResetOne is ChipsetReset for a single instance.
func (f *Family) chipsetResetOne(h Handle) error {
	if !f.resetAllowed() {
		return nil
	}
	f.mu.Lock()
	f.resetLocked(h)
	f.mu.Unlock()
	return nil
}

func (f *Family) notify(done []Completion) {
	if f.cfg.Notify == nil {
		return
	}
	for _, c := range done {
		f.cfg.Notify(c)
	}
}

// Start arms the falling-edge interrupt on w and services a line that is
// already asserted. The returned func disarms it and drops a pending
// re-arm.
func (f *Family) Start(ctx context.Context, w *gpioirq.Worker) (func(), error) {
	if f.cfg.IRQ == nil {
		return func() {}, nil
	}
	unregister, err := w.Register(f.cfg.Name, f.cfg.IRQ, halcore.EdgeFalling, f.HandleInterrupt)
	if err != nil {
		return nil, err
	}
	if !f.cfg.IRQ.Get() {
		f.HandleInterrupt()
	} else {
		f.RunFixedPass()
	}

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			unregister()
			f.cancelRearm()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			f.cancelRearm()
		case <-done:
		}
	}()
	return stop, nil
}

func (f *Family) cancelRearm() {
	if d, ok := f.cfg.Rearm.(interface{ Cancel() }); ok {
		d.Cancel()
	}
}
