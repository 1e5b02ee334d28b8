package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx by DeviceContext)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// Emulated board from platform/sim: two redrivers on i2c0 and a two-port
// crossbar chip on i2c1 behind IRQ line 7.
const cfgSim = `{
  "usbmux": {
    "ports": [
      {
        "chips": [
          {"type": "anx7483", "bus": "i2c0", "addr": 62, "flags": ["resets_in_g3"], "default_tuning": true}
        ],
        "alternate": [
          {"type": "virtual", "name": "ap-owned", "flags": ["set_without_flip"]}
        ]
      },
      {
        "chips": [
          {"type": "xbarmux", "bus": "i2c1", "addr": 64, "chip_port": 0, "irq_pin": 7, "cable_info": true},
          {"type": "anx7483", "bus": "i2c0", "addr": 63, "flags": ["polarity_inverted"]}
        ]
      },
      {
        "chips": [
          {"type": "xbarmux", "bus": "i2c1", "addr": 64, "chip_port": 1, "irq_pin": 7, "fixed": "dock", "flags": ["not_tcpc"]}
        ]
      }
    ]
  }
}`

// Linux host with a single redriver on /dev/i2c-1.
const cfgLinux = `{
  "usbmux": {
    "ports": [
      {"chips": [{"type": "anx7483", "bus": "i2c1", "addr": 62, "default_tuning": true}]}
    ]
  }
}`

// Pico bring-up board: a redriver on i2c0 and a crossbar on i2c1 with its
// interrupt on GP15.
const cfgPico = `{
  "heartbeat": {"interval": 5},
  "usbmux": {
    "ports": [
      {"chips": [{"type": "anx7483", "bus": "i2c0", "addr": 62}]},
      {"chips": [{"type": "xbarmux", "bus": "i2c1", "addr": 64, "irq_pin": 15}]}
    ]
  }
}`

var embeddedConfigs = map[string][]byte{
	"sim":   []byte(cfgSim),
	"linux": []byte(cfgLinux),
	"pico":  []byte(cfgPico),
}
