package types

// ---- Service state (retained on "usbmux/state") ----

type ServiceState struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // short code
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// ---- Per-port retained payloads ----

type MuxInfo struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Bus   string   `json:"bus,omitempty"`
	Addr  uint16   `json:"addr,omitempty"`
	Flags []string `json:"flags,omitempty"`
}

// PortInfo is published on "usbmux/port/<n>/info".
type PortInfo struct {
	Port         int       `json:"port"`
	Chain        []MuxInfo `json:"chain"`
	HasAlternate bool      `json:"has_alternate"`
	Alternate    bool      `json:"alternate"` // alternate chain active
}

// PortState is published on "usbmux/port/<n>/state".
type PortState struct {
	Port     int    `json:"port"`
	State    string `json:"state"` // "usb|dp|flip", "none"
	Mode     string `json:"mode"`  // state without polarity/HPD bits
	Polarity bool   `json:"polarity"`
	Bits     uint8  `json:"bits"`
	LowPower bool   `json:"low_power"`
	Pending  bool   `json:"pending,omitempty"` // awaiting an ack
	TS       int64  `json:"ts_ms"`
}

// ---- Control payloads ("usbmux/port/<n>/control/<verb>") ----

type SetRequest struct {
	Mode     string `json:"mode"` // "none", "usb", "dp", "dock", "safe", "tbt", "usb4" or a flag list
	Polarity bool   `json:"polarity,omitempty"`
}

// SetSingleRequest routes one mux of the active chain, by index.
type SetSingleRequest struct {
	Chip     int    `json:"chip"`
	Mode     string `json:"mode"`
	Polarity bool   `json:"polarity,omitempty"`
}

// HPDRequest carries DisplayPort hot-plug-detect state.
type HPDRequest struct {
	Level bool `json:"level"`
	IRQ   bool `json:"irq,omitempty"`
}

// TuneRequest applies default tuning for a state; empty Mode uses the
// current state.
type TuneRequest struct {
	Mode     string `json:"mode,omitempty"`
	Polarity bool   `json:"polarity,omitempty"`
}

type EQRequest struct {
	Chip int    `json:"chip"` // index in the active chain
	Pin  string `json:"pin"`
	EQ   uint8  `json:"eq"`
}

type FGRequest struct {
	Chip int    `json:"chip"`
	Pin  string `json:"pin"`
	FG   uint8  `json:"fg"`
}

// CableRequest records cable metadata reported by PD discovery.
type CableRequest struct {
	Active  bool  `json:"active,omitempty"`
	Retimer bool  `json:"retimer,omitempty"`
	Speed   uint8 `json:"speed,omitempty"`
	Clear   bool  `json:"clear,omitempty"`
}

type Reply struct {
	OK     bool       `json:"ok"`
	Port   int        `json:"port"`
	Error  string     `json:"error,omitempty"`  // errcode string
	Detail string     `json:"detail,omitempty"` // full error text
	Ack    string     `json:"ack,omitempty"`    // "required" when completion follows as an event
	State  *PortState `json:"state,omitempty"`
}

// ---- Events ----

// AckEvent is published on "usbmux/port/<n>/event/ack" when an
// asynchronous mux reports completion.
type AckEvent struct {
	Port  int    `json:"port"`
	Mux   string `json:"mux"`
	State string `json:"state"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    int64  `json:"ts_ms"`
}
