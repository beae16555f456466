// Package app runs the coordinator loop: the single goroutine that owns the
// directory listing, the output/surface registry, and the watch-set target,
// and that turns events from every subsystem into state transitions.
package app

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/underlay-sh/underlay/internal/config"
	"github.com/underlay-sh/underlay/internal/debug"
	"github.com/underlay-sh/underlay/internal/output"
	"github.com/underlay-sh/underlay/internal/scan"
	"github.com/underlay-sh/underlay/internal/store"
	"github.com/underlay-sh/underlay/internal/tab"
	"github.com/underlay-sh/underlay/internal/thumb"
	"github.com/underlay-sh/underlay/internal/watch"
)

// App owns all coordinator-loop state. Nothing here is locked: the loop
// goroutine is the sole mutator, workers communicate by message only.
type App struct {
	cfg        config.Config
	registry   *output.Registry
	compositor output.Compositor

	tab       *tab.Tab
	epoch     uint64 // Bumped on every location change
	scanning  bool   // Idle (false) / Rescanning (true)
	modifiers Modifiers

	session *watch.Session // nil until the engine hands it over
	engine  *watch.Engine
	worker  *scan.Worker
	thumbs  *thumb.Loader
	db      *store.DB

	messages  chan Message
	forwarded chan tab.Action
	done      chan struct{}
	closeOnce sync.Once

	// Injectable for tests; defaults to the platform launcher
	launch func(path string) error
}

// New assembles an app around a compositor binding. Run starts it.
func New(cfg config.Config, comp output.Compositor) *App {
	loc := cfg.StartPath
	if loc == "" {
		loc = defaultLocation()
	}

	opts := tab.Options{
		ShowHidden:    cfg.Listing.ShowHidden,
		Sort:          tab.ParseSortField(cfg.Listing.Sort),
		SortAscending: cfg.Listing.SortAscending,
	}

	db := store.NewDB()
	if cfg.Thumbnails.Enabled && cfg.Thumbnails.CacheDB {
		if err := db.Open(store.DefaultPath()); err != nil {
			log.Printf("app: thumbnail cache unavailable: %v", err)
		}
	}

	return &App{
		cfg:        cfg,
		registry:   output.NewRegistry(),
		compositor: comp,
		tab:        tab.New(tab.Location(loc), opts),
		db:         db,
		worker:     scan.NewWorker(),
		thumbs:     thumb.NewLoader(db, cfg.Thumbnails.MaxPixels),
		engine: watch.Start(
			time.Duration(cfg.Watch.DebounceMs)*time.Millisecond,
			cfg.Watch.BatchCapacity,
		),
		messages:  make(chan Message, 100),
		forwarded: make(chan tab.Action, 100),
		done:      make(chan struct{}),
		launch:    platformOpen,
	}
}

// defaultLocation is the desktop directory when present, home otherwise.
func defaultLocation() string {
	home, err := os.UserHomeDir()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	desktop := filepath.Join(home, "Desktop")
	if info, err := os.Stat(desktop); err == nil && info.IsDir() {
		return desktop
	}
	return home
}

// Send hands a message to the coordinator loop without ever blocking the
// caller. A full queue drops the message and logs it.
func (a *App) Send(msg Message) {
	select {
	case a.messages <- msg:
	case <-a.done:
	default:
		log.Printf("app: message queue full, dropping %T", msg)
	}
}

// Forwarded exposes the widget-layer actions this core does not interpret.
func (a *App) Forwarded() <-chan tab.Action {
	return a.forwarded
}

// Location returns the currently displayed directory.
func (a *App) Location() tab.Location {
	return a.tab.Location
}

// Run starts the subsystems and processes messages until Close. It must be
// the only goroutine touching App state after New.
func (a *App) Run() {
	go a.worker.Start()

	// Populate the listing right away; the watch session catches up when
	// its init message arrives.
	a.requestRescan()

	// Nil'ed after the one ready delivery so a closed channel can't spin
	ready := a.engine.Ready()

	for {
		select {
		case <-a.done:
			return

		case msg := <-a.messages:
			a.dispatch(msg)

		case session, ok := <-ready:
			ready = nil
			a.onSessionReady(session, ok)

		case batch := <-a.engine.Batches():
			a.onBatch(batch)

		case resp := <-a.worker.ResponseChan:
			a.onScanResponse(resp)

		case result := <-a.thumbs.Results():
			a.onThumbnail(result)
		}
	}
}

// Close stops the loop and every subsystem it owns. Safe to call more than
// once, and safe while the loop is mid-dispatch: no channel the loop sends on
// is ever closed, so a batch arriving during shutdown at worst queues a
// rescan nobody serves.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		if a.engine != nil {
			a.engine.Close()
		}
		a.worker.Close()
		a.thumbs.Close()
		if err := a.db.Close(); err != nil {
			log.Printf("app: closing thumbnail cache: %v", err)
		}
	})
}

// dispatch routes one external message to its handler.
func (a *App) dispatch(msg Message) {
	switch m := msg.(type) {
	case OutputAttached:
		a.onOutputAttached(m)
	case OutputRemoved:
		a.onOutputRemoved(m)
	case OutputInfoUpdated:
		a.registry.OutputInfoUpdated(m.Output, m.Name)
	case SurfaceFocused:
		name, _ := a.registry.SurfaceName(m.Surface)
		debug.Log(debug.APP, "surface %s focused (output %q)", m.Surface, name)
	case ModifiersChanged:
		a.modifiers = m.Modifiers
	case SetLocation:
		a.onSetLocation(m.Location)
	case TabAction:
		a.onAction(m.Action)
	default:
		debug.Log(debug.APP, "unhandled message %T", msg)
	}
}

func (a *App) onOutputAttached(m OutputAttached) {
	cmd, ok := a.registry.OutputAttached(m.Output, m.Name)
	if !ok {
		return
	}
	if err := a.compositor.CreateSurface(cmd); err != nil {
		log.Printf("app: failed to create surface for output %d: %v", m.Output, err)
	}
}

func (a *App) onOutputRemoved(m OutputRemoved) {
	cmd, ok := a.registry.OutputRemoved(m.Output)
	if !ok {
		return
	}
	if err := a.compositor.DestroySurface(cmd); err != nil {
		log.Printf("app: failed to destroy surface %s: %v", cmd.Surface, err)
	}
}

// onSessionReady adopts the watch session, reconciles the watch set against
// the current location, and kicks a rescan so nothing raced past us during
// startup. ok=false means the backend never came up; we keep running with a
// static listing.
func (a *App) onSessionReady(session *watch.Session, ok bool) {
	if !ok || session == nil {
		log.Printf("app: filesystem watching unavailable, listing will not auto-refresh")
		return
	}
	if a.session != nil {
		debug.Log(debug.APP, "duplicate watch session delivery ignored")
		return
	}

	a.session = session
	a.session.Reconcile([]string{string(a.tab.Location)})
	a.requestRescan()
}

// onBatch applies a debounced change batch: metadata patches in place when
// safe, otherwise one full rescan.
func (a *App) onBatch(batch watch.Batch) {
	c := scan.Classify(batch, a.tab)
	if c.FullRescan {
		a.requestRescan()
		return
	}

	if applied := scan.ApplyPatches(a.tab, c.Patches); applied > 0 {
		debug.Log(debug.APP, "applied %d metadata patches", applied)
		a.requestThumbnails(c.Patches)
	}
}

// onScanResponse replaces the listing wholesale - unless the result is for a
// stale epoch (the location changed while the read was in flight) or the
// read failed, in which case the last known good listing stays up.
func (a *App) onScanResponse(resp scan.Response) {
	if resp.Epoch != a.epoch {
		debug.Log(debug.APP, "discarding stale rescan for %q (epoch %d, current %d)",
			resp.Location, resp.Epoch, a.epoch)
		return
	}

	a.scanning = false

	if resp.Err != nil {
		log.Printf("app: rescan of %q failed, keeping previous listing: %v", resp.Location, resp.Err)
		return
	}

	a.tab.SetItems(resp.Items)
	debug.Log(debug.APP, "listing replaced: %d items", len(resp.Items))

	if a.cfg.Thumbnails.Enabled {
		for _, it := range resp.Items {
			if !it.IsDir {
				a.thumbs.Request(it.Path, it.Metadata.ModTime())
			}
		}
	}
}

// onThumbnail attaches a finished thumbnail to its item. Results for paths
// that left the listing are discarded.
func (a *App) onThumbnail(r thumb.Result) {
	it := a.tab.ItemByPath(r.Path)
	if it == nil {
		debug.Log(debug.APP, "thumbnail for departed item %s discarded", r.Path)
		return
	}
	it.Thumbnail = r.PNG
}

// onSetLocation bumps the epoch, retargets the watch set, and issues a
// rescan. The old items stay visible until the new listing lands.
func (a *App) onSetLocation(loc tab.Location) {
	if loc == a.tab.Location {
		return
	}

	a.epoch++
	a.tab.Location = loc
	debug.Log(debug.APP, "location set to %q (epoch %d)", loc, a.epoch)

	if a.session != nil {
		a.session.Reconcile([]string{string(loc)})
	}
	a.requestRescan()
}

// onAction routes open-file to the default handler and forwards everything
// else unmodified for the widget layer to deal with.
func (a *App) onAction(act tab.Action) {
	switch act.Kind {
	case tab.ActionOpen:
		if err := a.launch(act.Path); err != nil {
			log.Printf("app: failed to open %s: %v", act.Path, err)
		}
	default:
		select {
		case a.forwarded <- act:
		default:
			debug.Log(debug.APP, "forward queue full, dropping action %d", act.Kind)
		}
	}
}

// requestRescan hands the current location to the scan worker and enters the
// Rescanning state. This loop is the queue's only producer, so anything still
// buffered was issued for an older epoch or an already-covered location;
// those requests are drained first and the fresh one always fits. Without the
// drain, a stalled worker could fill the queue with stale-epoch requests and
// the current location's listing would never arrive.
func (a *App) requestRescan() {
	for drained := false; !drained; {
		select {
		case old := <-a.worker.RequestChan:
			debug.Log(debug.APP, "dropping superseded rescan for %q (epoch %d)", old.Location, old.Epoch)
		default:
			drained = true
		}
	}

	a.worker.RequestChan <- scan.Request{
		Location: a.tab.Location,
		Epoch:    a.epoch,
		Options:  a.tab.Options,
	}
	a.scanning = true
}

// requestThumbnails re-queues thumbnail generation for patched items.
func (a *App) requestThumbnails(patches []scan.Patch) {
	if !a.cfg.Thumbnails.Enabled {
		return
	}
	for _, p := range patches {
		if it := a.tab.ItemByPath(p.Path); it != nil && !it.IsDir {
			a.thumbs.Request(it.Path, it.Metadata.ModTime())
		}
	}
}
