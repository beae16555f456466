// Package tab holds the state of the displayed directory listing. The widget
// tree that renders it lives outside this module; it consumes snapshots of
// the item list and reports back semantic Actions.
package tab

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Location is the single absolute path currently displayed.
type Location string

// Metadata is the tagged variant behind every item: real filesystem entries
// carry stat results, synthetic entries (trash, mounts) carry fixed values.
// Patches only make sense for path-backed metadata.
type Metadata interface {
	Size() int64
	ModTime() time.Time
}

// PathMetadata wraps the stat result of a real filesystem path.
type PathMetadata struct {
	Info os.FileInfo
}

func (m PathMetadata) Size() int64        { return m.Info.Size() }
func (m PathMetadata) ModTime() time.Time { return m.Info.ModTime() }

// VirtualMetadata describes a synthetic entry with no backing path to stat.
type VirtualMetadata struct {
	EntrySize int64
	Modified  time.Time
}

func (m VirtualMetadata) Size() int64        { return m.EntrySize }
func (m VirtualMetadata) ModTime() time.Time { return m.Modified }

// Item is one entry in the displayed listing. Identity is the path.
type Item struct {
	Name      string
	Path      string
	IsDir     bool
	Metadata  Metadata
	Thumbnail []byte // Encoded PNG, nil until the thumbnail loader fills it
}

// SizeText returns a human-readable size for display.
func (i Item) SizeText() string {
	if i.IsDir {
		return "—"
	}
	if i.Metadata == nil {
		return ""
	}
	return humanize.IBytes(uint64(i.Metadata.Size()))
}

// SortField selects the listing sort order.
type SortField int

const (
	SortByName SortField = iota
	SortByDate
	SortBySize
)

// ParseSortField maps a config string to a sort field, defaulting to name.
func ParseSortField(s string) SortField {
	switch s {
	case "date":
		return SortByDate
	case "size":
		return SortBySize
	default:
		return SortByName
	}
}

// Options are the display options a rescan honors.
type Options struct {
	ShowHidden    bool
	Sort          SortField
	SortAscending bool
}

// Apply filters and sorts a freshly scanned item list according to the
// options. Directories always sort before files.
func Apply(items []Item, o Options) []Item {
	result := items
	if !o.ShowHidden {
		result = result[:0:0]
		for _, it := range items {
			if !strings.HasPrefix(it.Name, ".") {
				result = append(result, it)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].IsDir != result[j].IsDir {
			return result[i].IsDir
		}

		var less bool
		switch o.Sort {
		case SortByDate:
			less = result[i].Metadata.ModTime().Before(result[j].Metadata.ModTime())
		case SortBySize:
			less = result[i].Metadata.Size() < result[j].Metadata.Size()
		default:
			less = strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
		}

		if !o.SortAscending {
			return !less
		}
		return less
	})

	return result
}

// Tab is the displayed listing: one location, its items, and how to show them.
type Tab struct {
	Location Location
	Items    []Item
	Options  Options
}

// New creates a tab for a location with no items yet (the first rescan
// populates them).
func New(loc Location, o Options) *Tab {
	return &Tab{Location: loc, Options: o}
}

// SetItems replaces the item collection wholesale, as a completed rescan does.
func (t *Tab) SetItems(items []Item) {
	t.Items = items
}

// ItemByPath returns a pointer into the live item list for in-place patching.
func (t *Tab) ItemByPath(path string) *Item {
	for i := range t.Items {
		if t.Items[i].Path == path {
			return &t.Items[i]
		}
	}
	return nil
}

// Contains reports whether a path lies under the tab's location.
func (t *Tab) Contains(path string) bool {
	loc := string(t.Location)
	if path == loc {
		return true
	}
	rel, err := filepath.Rel(loc, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ActionKind is a semantic action bubbling up from the widget layer.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionOpen             // Open a file with the default handler
	ActionScroll           // Scroll the listing to an offset
	ActionFocus            // Focus request for a widget
)

// Action is one widget-layer event. The coordinator loop routes ActionOpen
// to the platform launcher and forwards everything else unmodified.
type Action struct {
	Kind   ActionKind
	Path   string
	Offset int
}
