// Package xbarmux drives command/status crossbar mux chips. A Set issues a
// command block and returns at once; completion is reported through the
// chip's interrupt line and confirmed by a status read.
package xbarmux

const (
	regIntStatus = 0x01 // R, latched bits clear on read
	regExtStatus = 0x02 // R, 2-bit completion code per chip-local port
	regCommand   = 0x10 // W, block: len, port, mode, flags, speed
	regMailbox   = 0x20 // R, 16 bytes, read drains
	regPortCtrl  = 0x30 // R/W, bit n = port n idle, bit n+4 = port n low power

	// INT_STATUS
	intReadyChanged = 1 << 0
	intCmd          = 1 << 1
	intErr          = 1 << 2
	intMailbox      = 1 << 3
	intReadyLevel   = 1 << 7

	// Command block
	cmdLen = 4

	modeUSB  = 1 << 0
	modeDP   = 1 << 1
	modeTBT  = 1 << 2
	modeUSB4 = 1 << 3

	flagPolarity    = 1 << 0
	flagActiveCable = 1 << 1
	flagRetimer     = 1 << 2

	mailboxLen = 16
	maxPorts   = 4
)

// Code is a per-port command completion code from EXT_STATUS.
type Code uint8

const (
	CodeIdle Code = iota
	CodeInProgress
	CodeComplete
	CodeFailed
)

func (c Code) String() string {
	switch c {
	case CodeIdle:
		return "idle"
	case CodeInProgress:
		return "in_progress"
	case CodeComplete:
		return "complete"
	}
	return "failed"
}

func extCode(ext byte, port uint8) Code {
	return Code(ext>>(2*port)) & 0x3
}

func idleBit(port uint8) byte     { return 1 << port }
func lowPowerBit(port uint8) byte { return 1 << (port + 4) }
