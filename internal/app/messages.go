package app

import (
	"github.com/underlay-sh/underlay/internal/output"
	"github.com/underlay-sh/underlay/internal/tab"
)

// Message is anything the coordinator loop consumes from the outside world.
// Each concrete type maps to exactly one handler; the loop itself stays
// independent of how many platform event variants the host protocol has.
type Message interface {
	isMessage()
}

// OutputAttached reports a new physical display.
type OutputAttached struct {
	Output output.Output
	Name   string // Optional; empty when the protocol gave no name
}

// OutputRemoved reports a display going away.
type OutputRemoved struct {
	Output output.Output
}

// OutputInfoUpdated reports new display metadata for a known output.
type OutputInfoUpdated struct {
	Output output.Output
	Name   string
}

// SurfaceFocused reports pointer focus landing on one of our surfaces.
// Informational only.
type SurfaceFocused struct {
	Surface output.SurfaceID
}

// Modifiers is the opaque keyboard-modifier state. The core stores and
// forwards it; it never interprets the bits.
type Modifiers uint32

// ModifiersChanged carries a modifier state update for the widget layer.
type ModifiersChanged struct {
	Modifiers Modifiers
}

// SetLocation changes the displayed directory.
type SetLocation struct {
	Location tab.Location
}

// TabAction wraps a semantic action from the widget layer.
type TabAction struct {
	Action tab.Action
}

func (OutputAttached) isMessage()    {}
func (OutputRemoved) isMessage()     {}
func (OutputInfoUpdated) isMessage() {}
func (SurfaceFocused) isMessage()    {}
func (ModifiersChanged) isMessage()  {}
func (SetLocation) isMessage()       {}
func (TabAction) isMessage()         {}
