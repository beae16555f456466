// Package scan decides how a batch of filesystem changes maps onto the
// displayed listing - cheap in-place metadata patches where safe, a full
// directory rescan otherwise - and runs the rescans off the coordinator loop.
package scan

import (
	"log"
	"os"

	"github.com/underlay-sh/underlay/internal/debug"
	"github.com/underlay-sh/underlay/internal/tab"
	"github.com/underlay-sh/underlay/internal/watch"
)

// Patch is an in-place metadata refresh for one listed item.
type Patch struct {
	Path string
}

// Classification is the outcome of examining one batch against the listing.
// FullRescan makes the patches irrelevant; the whole listing is re-read.
type Classification struct {
	Patches    []Patch
	FullRescan bool
}

// Classify walks a batch and decides per event whether an in-place patch
// suffices. Metadata and data-modify events on already-listed, path-backed
// items become patches; any other mutating event forces a full rescan and
// short-circuits the rest of the batch. The conservative default is a
// rescan: a possibly-incomplete patch is worse than a re-read.
func Classify(batch watch.Batch, t *tab.Tab) Classification {
	var c Classification

	for _, ev := range batch {
		if !t.Contains(ev.Path) {
			continue
		}

		switch ev.Kind {
		case watch.KindAccess:
			// No semantic effect. The engine filters these out, but the
			// classifier must be safe against them regardless.
			continue

		case watch.KindMetadata:
			if ev.Metadata != watch.MetadataAny && ev.Metadata != watch.MetadataWriteTime {
				continue
			}
			if !patchable(t, ev.Path) {
				debug.Log(debug.SCAN, "metadata change on unlisted %s, full rescan", ev.Path)
				return Classification{FullRescan: true}
			}
			c.Patches = append(c.Patches, Patch{Path: ev.Path})

		case watch.KindDataModify:
			if !patchable(t, ev.Path) {
				debug.Log(debug.SCAN, "data modify on unlisted %s, full rescan", ev.Path)
				return Classification{FullRescan: true}
			}
			c.Patches = append(c.Patches, Patch{Path: ev.Path})

		default:
			// Create, remove, rename, other: the listing membership changed
			debug.Log(debug.SCAN, "%s on %s, full rescan", ev.Kind, ev.Path)
			return Classification{FullRescan: true}
		}
	}

	return c
}

// patchable reports whether the path matches a listed item whose metadata
// can be re-read from the filesystem.
func patchable(t *tab.Tab, path string) bool {
	it := t.ItemByPath(path)
	if it == nil {
		return false
	}
	_, ok := it.Metadata.(tab.PathMetadata)
	return ok
}

// ApplyPatches re-stats each patched path and refreshes the matching item's
// metadata in place. A failed stat is logged and the existing metadata kept;
// stale-but-present beats a blank entry. Returns the number applied.
func ApplyPatches(t *tab.Tab, patches []Patch) int {
	applied := 0
	for _, p := range patches {
		it := t.ItemByPath(p.Path)
		if it == nil {
			continue
		}

		info, err := os.Stat(p.Path)
		if err != nil {
			log.Printf("scan: failed to reload metadata for %s: %v", p.Path, err)
			continue
		}

		it.Metadata = tab.PathMetadata{Info: info}
		// Content may have changed under the thumbnail; the next loader pass
		// regenerates it keyed on the new mtime.
		it.Thumbnail = nil
		applied++
		debug.Log(debug.SCAN, "patched metadata for %s", p.Path)
	}
	return applied
}
