// Package output tracks physical display outputs and the rendering surface
// bound to each one. The compositor protocol itself is abstracted behind the
// Compositor interface; this package only decides which surfaces should exist.
package output

import (
	"log"

	"github.com/google/uuid"

	"github.com/underlay-sh/underlay/internal/debug"
)

// Output is an opaque handle to a physical display, stable for the lifetime
// of the attachment. The compositor layer assigns it; the registry never
// invents or merges handles.
type Output uint64

// SurfaceID identifies one rendering surface. Identities are never reused;
// each creation allocates a fresh one so a detach/attach race can't confuse
// an old surface with a new one.
type SurfaceID = uuid.UUID

// Surface placement constants for CreateSurface commands.
const (
	PlacementBackground = "background" // Full-screen, below normal windows
)

// CreateSurface asks the compositor to create a rendering surface on an output.
type CreateSurface struct {
	Surface   SurfaceID
	Output    Output
	Placement string // Always PlacementBackground for the desktop view
	// Pointer interaction only; the background layer never takes keyboard focus.
	PointerOnly bool
}

// DestroySurface asks the compositor to tear down a surface.
type DestroySurface struct {
	Surface SurfaceID
}

// Compositor is the command sink for surface lifecycle. Implemented by the
// host windowing layer; tests use a fake.
type Compositor interface {
	CreateSurface(cmd CreateSurface) error
	DestroySurface(cmd DestroySurface) error
}

// Registry maintains the one-surface-per-live-output invariant.
// Not safe for concurrent use; all calls come from the coordinator loop.
type Registry struct {
	surfaces map[Output]SurfaceID
	names    map[SurfaceID]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		surfaces: make(map[Output]SurfaceID),
		names:    make(map[SurfaceID]string),
	}
}

// OutputAttached records a new output and returns the surface creation command
// for it. A duplicate attach notification keeps the existing mapping and
// returns ok=false so no second surface leaks.
func (r *Registry) OutputAttached(out Output, name string) (CreateSurface, bool) {
	if existing, dup := r.surfaces[out]; dup {
		// Protocol inconsistency; must be visible in release builds too
		log.Printf("output: output %d already has surface %s, ignoring duplicate attach", out, existing)
		return CreateSurface{}, false
	}

	id := uuid.New()
	r.surfaces[out] = id
	if name != "" {
		r.names[id] = name
	} else {
		debug.Log(debug.OUTPUT, "output %d: attached without a name", out)
	}

	debug.Log(debug.OUTPUT, "output %d (%q): created surface %s", out, name, id)
	return CreateSurface{
		Surface:     id,
		Output:      out,
		Placement:   PlacementBackground,
		PointerOnly: true,
	}, true
}

// OutputRemoved drops the mapping for an output and returns the destroy
// command for its surface. A detach for an output that was never registered
// returns ok=false; the inconsistency is logged and otherwise tolerated.
func (r *Registry) OutputRemoved(out Output) (DestroySurface, bool) {
	id, ok := r.surfaces[out]
	if !ok {
		log.Printf("output: output %d removed but no surface found", out)
		return DestroySurface{}, false
	}

	delete(r.surfaces, out)
	delete(r.names, id)
	debug.Log(debug.OUTPUT, "output %d: removed, destroying surface %s", out, id)
	return DestroySurface{Surface: id}, true
}

// OutputInfoUpdated refreshes the stored name for an output's surface.
// Surface identity is never affected by info updates.
func (r *Registry) OutputInfoUpdated(out Output, name string) {
	id, ok := r.surfaces[out]
	if !ok {
		log.Printf("output: info update for unknown output %d", out)
		return
	}
	if name != "" {
		r.names[id] = name
	}
	debug.Log(debug.OUTPUT, "output %d: info update, name=%q", out, name)
}

// SurfaceFor returns the surface bound to an output, if any.
func (r *Registry) SurfaceFor(out Output) (SurfaceID, bool) {
	id, ok := r.surfaces[out]
	return id, ok
}

// SurfaceName returns the output name recorded for a surface.
func (r *Registry) SurfaceName(id SurfaceID) (string, bool) {
	name, ok := r.names[id]
	return name, ok
}

// Len returns the number of live surfaces.
func (r *Registry) Len() int {
	return len(r.surfaces)
}
