package mux

import "typecmux-go/bus"

func TopicConfig() bus.Topic  { return bus.T("config", "usbmux") }
func TopicState() bus.Topic   { return bus.T("usbmux", "state") }
func TopicChipset() bus.Topic { return bus.T("chipset", "state") }

// usbmux/port/<n>/...
func portBase(n int) bus.Topic { return bus.T("usbmux", "port", n) }

func TopicPortInfo(n int) bus.Topic  { return portBase(n).Append("info") }
func TopicPortState(n int) bus.Topic { return portBase(n).Append("state") }
func TopicPortAck(n int) bus.Topic   { return portBase(n).Append("event", "ack") }

// usbmux/port/<n>/control/<verb>
func TopicControl(n int, verb string) bus.Topic { return portBase(n).Append("control", verb) }

// usbmux/port/+/control/+
func ctrlWildcard() bus.Topic { return bus.T("usbmux", "port", "+", "control", "+") }
