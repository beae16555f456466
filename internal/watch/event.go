// Package watch owns the filesystem watch session and turns the raw,
// noisy fsnotify event stream into debounced batches of meaningful changes.
package watch

import (
	"github.com/fsnotify/fsnotify"
)

// Kind classifies a filesystem change event.
type Kind int

const (
	KindOther Kind = iota
	KindAccess
	KindMetadata
	KindDataModify
	KindCreate
	KindRemove
	KindRename
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindMetadata:
		return "metadata"
	case KindDataModify:
		return "data-modify"
	case KindCreate:
		return "create"
	case KindRemove:
		return "remove"
	case KindRename:
		return "rename"
	default:
		return "other"
	}
}

// MetadataKind is the subkind of a metadata-change event. Only generic and
// write-time changes can affect the displayed listing; the rest are noise.
type MetadataKind int

const (
	MetadataAny MetadataKind = iota
	MetadataWriteTime
	MetadataPermissions
	MetadataOwnership
	MetadataExtended
)

// Event is one classified filesystem change.
type Event struct {
	Path     string
	Kind     Kind
	Metadata MetadataKind // Meaningful only when Kind == KindMetadata
}

// Batch is an ordered set of merged events emitted after one quiet window.
type Batch []Event

// classify maps a raw fsnotify event to an internal Event. fsnotify ops are a
// bitmask; the most significant change wins. Chmod carries no subkind detail
// (on Linux IN_ATTRIB also covers mtime-only updates), so it maps to the
// generic metadata subkind rather than permissions.
func classify(ev fsnotify.Event) Event {
	e := Event{Path: ev.Name}
	switch {
	case ev.Has(fsnotify.Create):
		e.Kind = KindCreate
	case ev.Has(fsnotify.Remove):
		e.Kind = KindRemove
	case ev.Has(fsnotify.Rename):
		e.Kind = KindRename
	case ev.Has(fsnotify.Write):
		e.Kind = KindDataModify
	case ev.Has(fsnotify.Chmod):
		e.Kind = KindMetadata
		e.Metadata = MetadataAny
	default:
		e.Kind = KindOther
	}
	return e
}

// relevant reports whether an event can affect a displayed listing.
// Pure-access events never do; metadata changes only when the subkind is
// generic or write-time.
func relevant(e Event) bool {
	switch e.Kind {
	case KindAccess:
		return false
	case KindMetadata:
		return e.Metadata == MetadataAny || e.Metadata == MetadataWriteTime
	default:
		return true
	}
}

// Filter drops events with no semantic effect on a listing. The engine
// applies it before emitting; classifiers downstream must still tolerate
// irrelevant events arriving (they simply produce no work).
func Filter(batch Batch) Batch {
	kept := batch[:0:0]
	for _, e := range batch {
		if relevant(e) {
			kept = append(kept, e)
		}
	}
	return kept
}
