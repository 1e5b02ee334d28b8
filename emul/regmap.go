package emul

import "sync"

// Regmap is a 256-byte register file with auto-incrementing access,
// reserved-bit checks, a write log and fault injection.
type Regmap struct {
	mu       sync.Mutex
	regs     [256]byte
	defaults [256]byte
	reserved [256]byte
	writes   []RegWrite

	failNext   int  // fail the next n transactions
	failWrites bool // fail every write
	asleep     int  // nack this many transactions (wake emulation)

	// OnWrite is called after a register write lands, with mu held.
	onWrite func(reg, val byte)
	// OnRead may replace a read value, with mu held.
	onRead func(reg byte) (byte, bool)
}

// RegWrite is one logged register write.
type RegWrite struct {
	Reg, Val byte
}

func NewRegmap() *Regmap { return &Regmap{} }

// Default sets the reset value and reserved mask of a register.
func (m *Regmap) Default(reg, val, reserved byte) {
	m.mu.Lock()
	m.defaults[reg] = val
	m.regs[reg] = val
	m.reserved[reg] = reserved
	m.mu.Unlock()
}

// Reset restores every register to its default and clears the log.
func (m *Regmap) Reset() {
	m.mu.Lock()
	m.regs = m.defaults
	m.writes = nil
	m.mu.Unlock()
}

func (m *Regmap) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.asleep > 0 {
		m.asleep--
		return ErrNack
	}
	if m.failNext > 0 {
		m.failNext--
		return ErrNack
	}
	if len(w) == 0 {
		return ErrNack
	}
	reg := w[0]
	if len(w) > 1 && m.failWrites {
		return ErrNack
	}
	for i, v := range w[1:] {
		a := reg + byte(i)
		if (v^m.defaults[a])&m.reserved[a] != 0 {
			return ErrReserved
		}
		m.regs[a] = v
		m.writes = append(m.writes, RegWrite{a, v})
		if m.onWrite != nil {
			m.onWrite(a, v)
		}
	}
	for i := range r {
		a := reg + byte(i)
		v := m.regs[a]
		if m.onRead != nil {
			if nv, ok := m.onRead(a); ok {
				v = nv
			}
		}
		r[i] = v
	}
	return nil
}

// Reg returns the current value of a register without bus traffic.
func (m *Regmap) Reg(reg byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// SetReg pokes a register without bus traffic or reserved checks.
func (m *Regmap) SetReg(reg, val byte) {
	m.mu.Lock()
	m.regs[reg] = val
	m.mu.Unlock()
}

// WriteLog returns the register writes seen so far.
func (m *Regmap) WriteLog() []RegWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RegWrite(nil), m.writes...)
}

func (m *Regmap) ClearLog() {
	m.mu.Lock()
	m.writes = nil
	m.mu.Unlock()
}

// FailNext makes the next n transactions fail.
func (m *Regmap) FailNext(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

// FailWrites makes every write fail while set; reads still succeed.
func (m *Regmap) FailWrites(on bool) {
	m.mu.Lock()
	m.failWrites = on
	m.mu.Unlock()
}

// Sleep makes the device nack the next n transactions, as a chip still
// coming out of reset would.
func (m *Regmap) Sleep(n int) {
	m.mu.Lock()
	m.asleep = n
	m.mu.Unlock()
}
