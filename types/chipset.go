package types

// ChipsetState is published on "chipset/state" by whatever owns host power
// sequencing. Target, when set and different from State, marks a
// transition in flight.
type ChipsetState struct {
	State  string `json:"state"` // "hard_off", "soft_off", "suspend", "on"
	Target string `json:"target,omitempty"`
}
