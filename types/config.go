package types

// Board description supplied on topic "config/usbmux".

type BoardConfig struct {
	Ports []PortConfig `json:"ports"` // index is the USB-C port number
}

type PortConfig struct {
	Chips     []ChipConfig `json:"chips"`               // root first
	Alternate []ChipConfig `json:"alternate,omitempty"` // optional second population
}

type ChipConfig struct {
	Name  string   `json:"name,omitempty"` // defaults to Type
	Type  string   `json:"type"`           // "anx7483", "xbarmux", "virtual"
	Bus   string   `json:"bus,omitempty"`
	Addr  uint16   `json:"addr,omitempty"`
	Flags []string `json:"flags,omitempty"` // see usbmux.ParseFlags

	// xbarmux
	ChipPort  uint8  `json:"chip_port,omitempty"`
	IRQPin    *int   `json:"irq_pin,omitempty"`
	Fixed     string `json:"fixed,omitempty"` // mode name held while idle
	CableInfo bool   `json:"cable_info,omitempty"`

	// anx7483
	DefaultTuning bool `json:"default_tuning,omitempty"`
}
