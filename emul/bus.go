// Package emul provides register-level emulators for the mux chips and an
// I2C bus to hang them on. It backs the driver tests and the sim platform.
package emul

import (
	"errors"
	"sync"
)

var (
	ErrNoDevice = errors.New("emul: no device at address")
	ErrNack     = errors.New("emul: nack")
	ErrReserved = errors.New("emul: write to reserved bits")
)

// Target is one device on an emulated bus.
type Target interface {
	Tx(w, r []byte) error
}

// Tx is one recorded bus transaction.
type Tx struct {
	Addr uint16
	W    []byte
	R    int // bytes requested
}

// Bus implements drivers.I2C over attached targets and logs every
// transaction.
type Bus struct {
	mu   sync.Mutex
	devs map[uint16]Target
	log  []Tx
}

func NewBus() *Bus { return &Bus{devs: map[uint16]Target{}} }

func (b *Bus) Attach(addr uint16, t Target) {
	b.mu.Lock()
	b.devs[addr] = t
	b.mu.Unlock()
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	t := b.devs[addr]
	b.log = append(b.log, Tx{Addr: addr, W: append([]byte(nil), w...), R: len(r)})
	b.mu.Unlock()
	if t == nil {
		return ErrNoDevice
	}
	return t.Tx(w, r)
}

// Log returns a copy of the transaction log.
func (b *Bus) Log() []Tx {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Tx(nil), b.log...)
}

// Writes counts transactions that carried a payload beyond the register
// pointer.
func (b *Bus) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, tx := range b.log {
		if len(tx.W) > 1 {
			n++
		}
	}
	return n
}

func (b *Bus) ResetLog() {
	b.mu.Lock()
	b.log = nil
	b.mu.Unlock()
}
