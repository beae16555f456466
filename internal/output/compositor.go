package output

import (
	"log"
)

// LogCompositor is a stand-in command sink for environments where the real
// compositor binding is not wired up. It records what would happen and
// succeeds.
type LogCompositor struct{}

func (LogCompositor) CreateSurface(cmd CreateSurface) error {
	log.Printf("compositor: create surface %s on output %d (%s, pointer-only=%v)",
		cmd.Surface, cmd.Output, cmd.Placement, cmd.PointerOnly)
	return nil
}

func (LogCompositor) DestroySurface(cmd DestroySurface) error {
	log.Printf("compositor: destroy surface %s", cmd.Surface)
	return nil
}
