// Package virtual builds pass-through muxes for lanes configured by
// someone else.
package virtual

import (
	"typecmux-go/services/mux/core"
	"typecmux-go/usbmux"
)

func init() { core.RegisterBuilder("virtual", builder{}) }

type builder struct{}

func (builder) Build(in core.BuildInput) (usbmux.Driver, error) {
	return usbmux.NewPassThrough(in.Env.Power), nil
}
