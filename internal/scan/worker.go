package scan

import (
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/underlay-sh/underlay/internal/debug"
	"github.com/underlay-sh/underlay/internal/tab"
)

// Request asks the worker for a fresh listing of one location. Epoch is the
// location generation it was issued for; the coordinator loop discards
// responses whose epoch no longer matches.
type Request struct {
	Location tab.Location
	Epoch    uint64
	Options  tab.Options
}

// Response carries the rescan result back to the coordinator loop.
type Response struct {
	Location tab.Location
	Epoch    uint64
	Items    []tab.Item
	Err      error
}

// Worker executes blocking directory reads off the coordinator loop. One
// request is processed at a time; relevance (the epoch) rather than a mutex
// keeps results single-flight.
type Worker struct {
	RequestChan  chan Request
	ResponseChan chan Response

	done chan struct{}
	once sync.Once
}

// NewWorker creates a rescan worker. Start must be called on its own
// goroutine.
func NewWorker() *Worker {
	return &Worker{
		RequestChan:  make(chan Request, 4),
		ResponseChan: make(chan Response, 4),
		done:         make(chan struct{}),
	}
}

// Start processes rescan requests until Close. RequestChan stays open for
// the worker's lifetime so producers can always send without a liveness
// check; requests arriving after Close simply sit unserved.
func (w *Worker) Start() {
	for {
		select {
		case <-w.done:
			return
		case req := <-w.RequestChan:
			debug.Log(debug.SCAN, "rescan request: location=%q epoch=%d", req.Location, req.Epoch)

			items, err := ReadListing(string(req.Location), req.Options)
			if err != nil {
				debug.Log(debug.SCAN, "rescan failed: %v", err)
			} else {
				debug.Log(debug.SCAN, "rescan done: %d items (epoch %d)", len(items), req.Epoch)
			}

			select {
			case w.ResponseChan <- Response{
				Location: req.Location,
				Epoch:    req.Epoch,
				Items:    items,
				Err:      err,
			}:
			case <-w.done:
				return
			}
		}
	}
}

// Close stops the worker. Safe to call more than once.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.done) })
}

// ReadListing reads the direct children of a directory and returns them
// filtered and sorted per the display options. Individual entries that fail
// to stat are skipped; only a failure to read the directory itself is an
// error, in which case the caller keeps its previous listing.
func ReadListing(path string, opts tab.Options) ([]tab.Item, error) {
	var result []tab.Item
	var mu sync.Mutex

	// Follow symlinks so a linked directory lists as a directory
	conf := &fastwalk.Config{
		Follow: true,
	}

	pathLen := len(path)

	err := fastwalk.Walk(conf, path, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if fullPath == path {
				// The location itself is unreadable; fail the whole rescan
				return err
			}
			debug.Log(debug.SCAN_ENTRY, "walk error at %q: %v", fullPath, err)
			return nil
		}

		// Skip the root directory itself
		if fullPath == path {
			return nil
		}

		// Only direct children; don't descend
		relStart := pathLen
		if relStart < len(fullPath) && (fullPath[relStart] == '/' || fullPath[relStart] == '\\') {
			relStart++
		}
		if strings.ContainsAny(fullPath[relStart:], "/\\") {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			// Broken symlink: fall back to lstat so the entry still lists
			info, err = os.Lstat(fullPath)
			if err != nil {
				debug.Log(debug.SCAN_ENTRY, "skipping %q: stat error: %v", d.Name(), err)
				return nil
			}
		}

		mu.Lock()
		result = append(result, tab.Item{
			Name:     d.Name(),
			Path:     fullPath,
			IsDir:    info.IsDir(),
			Metadata: tab.PathMetadata{Info: info},
		})
		mu.Unlock()

		if d.IsDir() {
			return fastwalk.SkipDir
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return tab.Apply(result, opts), nil
}
