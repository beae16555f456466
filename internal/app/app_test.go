package app

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/underlay-sh/underlay/internal/config"
	"github.com/underlay-sh/underlay/internal/output"
	"github.com/underlay-sh/underlay/internal/scan"
	"github.com/underlay-sh/underlay/internal/tab"
	"github.com/underlay-sh/underlay/internal/watch"
)

// fakeCompositor records surface commands; safe for cross-goroutine asserts.
type fakeCompositor struct {
	mu        sync.Mutex
	created   []output.CreateSurface
	destroyed []output.DestroySurface
}

func (f *fakeCompositor) CreateSurface(cmd output.CreateSurface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, cmd)
	return nil
}

func (f *fakeCompositor) DestroySurface(cmd output.DestroySurface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, cmd)
	return nil
}

func (f *fakeCompositor) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created), len(f.destroyed)
}

func testConfig(startPath string) config.Config {
	cfg := *config.DefaultConfig()
	cfg.StartPath = startPath
	cfg.Listing.ShowHidden = true
	cfg.Thumbnails.Enabled = false // Keep tests off the real cache path
	return cfg
}

// newTestApp builds an app whose handlers are driven directly by the test
// goroutine; Run is never started, so state reads are race-free.
func newTestApp(t *testing.T, dir string) (*App, *fakeCompositor) {
	t.Helper()
	fc := &fakeCompositor{}
	a := New(testConfig(dir), fc)
	t.Cleanup(a.Close)
	return a, fc
}

// scanNow performs a synchronous rescan for the app's current location and
// feeds the response through the normal handler.
func scanNow(t *testing.T, a *App) {
	t.Helper()
	items, err := scan.ReadListing(string(a.tab.Location), a.tab.Options)
	a.onScanResponse(scan.Response{
		Location: a.tab.Location,
		Epoch:    a.epoch,
		Items:    items,
		Err:      err,
	})
}

// drainRescans empties the worker queue, returning how many were pending.
func drainRescans(a *App) int {
	n := 0
	for {
		select {
		case <-a.worker.RequestChan:
			n++
		default:
			return n
		}
	}
}

func TestEndToEnd_PatchThenRescan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	a, _ := newTestApp(t, dir)
	scanNow(t, a)
	if len(a.tab.Items) != 2 {
		t.Fatalf("expected 2 items after initial scan, got %d", len(a.tab.Items))
	}

	aPath := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(aPath, []byte("rewritten content"), 0o644); err != nil {
		t.Fatal(err)
	}
	drainRescans(a)

	// Data-modify on a listed item: one in-place patch, no rescan
	a.onBatch(watch.Batch{{Path: aPath, Kind: watch.KindDataModify}})

	if got := drainRescans(a); got != 0 {
		t.Errorf("patch-only batch issued %d rescans", got)
	}
	if len(a.tab.Items) != 2 {
		t.Errorf("item count changed by a patch: %d", len(a.tab.Items))
	}
	it := a.tab.ItemByPath(aPath)
	if it == nil || it.Metadata.Size() != int64(len("rewritten content")) {
		t.Error("patch did not refresh the item's metadata")
	}

	// Create event: full rescan, listing then contains the new file
	cPath := filepath.Join(dir, "c.txt")
	if err := os.WriteFile(cPath, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	a.onBatch(watch.Batch{{Path: cPath, Kind: watch.KindCreate}})

	if got := drainRescans(a); got != 1 {
		t.Fatalf("create batch should issue exactly one rescan, got %d", got)
	}
	if !a.scanning {
		t.Error("loop should be in the rescanning state")
	}

	scanNow(t, a)
	if a.scanning {
		t.Error("loop should be idle after the rescan result")
	}
	if len(a.tab.Items) != 3 {
		t.Fatalf("expected 3 items after rescan, got %d", len(a.tab.Items))
	}
	for _, want := range []string{"a.txt", "b.txt", "c.txt"} {
		if a.tab.ItemByPath(filepath.Join(dir, want)) == nil {
			t.Errorf("listing missing %s", want)
		}
	}
}

func TestStaleRescanDiscarded(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := os.WriteFile(filepath.Join(dirA, "a-only.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dirB, "b-only.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, _ := newTestApp(t, dirA)
	epochA := a.epoch

	// Location moves to B before A's result arrives
	a.onSetLocation(tab.Location(dirB))
	drainRescans(a)

	itemsA, err := scan.ReadListing(dirA, a.tab.Options)
	if err != nil {
		t.Fatal(err)
	}
	a.onScanResponse(scan.Response{Location: tab.Location(dirA), Epoch: epochA, Items: itemsA})

	if a.tab.ItemByPath(filepath.Join(dirA, "a-only.txt")) != nil {
		t.Error("stale rescan result was applied")
	}

	// B's result lands and wins
	scanNow(t, a)
	if a.tab.ItemByPath(filepath.Join(dirB, "b-only.txt")) == nil {
		t.Error("current location's rescan result missing")
	}
	if len(a.tab.Items) != 1 {
		t.Errorf("expected only B's item, got %d items", len(a.tab.Items))
	}
}

func TestRescanFailureKeepsListing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("k"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, _ := newTestApp(t, dir)
	scanNow(t, a)
	if len(a.tab.Items) != 1 {
		t.Fatal("setup: expected 1 item")
	}

	a.onScanResponse(scan.Response{
		Location: a.tab.Location,
		Epoch:    a.epoch,
		Err:      os.ErrPermission,
	})

	if len(a.tab.Items) != 1 {
		t.Error("a failed rescan must keep the previous listing")
	}
	if a.scanning {
		t.Error("a failed rescan still ends the rescanning state")
	}
}

func TestOutputLifecycle(t *testing.T) {
	a, fc := newTestApp(t, t.TempDir())

	a.dispatch(OutputAttached{Output: 1, Name: "DP-1"})
	a.dispatch(OutputAttached{Output: 2, Name: "HDMI-A-1"})
	a.dispatch(OutputAttached{Output: 1, Name: "DP-1"}) // duplicate

	created, destroyed := fc.counts()
	if created != 2 || destroyed != 0 {
		t.Fatalf("expected 2 creates / 0 destroys, got %d/%d", created, destroyed)
	}
	if a.registry.Len() != 2 {
		t.Errorf("expected 2 live surfaces, got %d", a.registry.Len())
	}

	a.dispatch(OutputRemoved{Output: 1})
	a.dispatch(OutputRemoved{Output: 99}) // unknown output, tolerated

	created, destroyed = fc.counts()
	if destroyed != 1 {
		t.Errorf("expected 1 destroy, got %d", destroyed)
	}
	if a.registry.Len() != 1 {
		t.Errorf("expected 1 live surface, got %d", a.registry.Len())
	}
}

func TestOutputHandling_OrthogonalToRescanState(t *testing.T) {
	a, fc := newTestApp(t, t.TempDir())

	a.scanning = true // pretend a rescan is in flight
	a.dispatch(OutputAttached{Output: 5, Name: ""})

	created, _ := fc.counts()
	if created != 1 {
		t.Error("output attach must be handled immediately regardless of rescan state")
	}
	if !a.scanning {
		t.Error("output handling must not touch the rescan state")
	}
}

func TestActionOpenRoutedToLauncher(t *testing.T) {
	a, _ := newTestApp(t, t.TempDir())

	var opened []string
	a.launch = func(path string) error {
		opened = append(opened, path)
		return nil
	}

	a.dispatch(TabAction{Action: tab.Action{Kind: tab.ActionOpen, Path: "/d/file.pdf"}})
	if len(opened) != 1 || opened[0] != "/d/file.pdf" {
		t.Errorf("expected launcher called with /d/file.pdf, got %v", opened)
	}
}

func TestActionForwardedUnmodified(t *testing.T) {
	a, _ := newTestApp(t, t.TempDir())

	act := tab.Action{Kind: tab.ActionScroll, Offset: 120}
	a.dispatch(TabAction{Action: act})

	select {
	case got := <-a.Forwarded():
		if got != act {
			t.Errorf("forwarded action mutated: %+v", got)
		}
	default:
		t.Fatal("scroll action was not forwarded")
	}
}

func TestModifiersStoredOpaquely(t *testing.T) {
	a, _ := newTestApp(t, t.TempDir())
	a.dispatch(ModifiersChanged{Modifiers: 0b101})
	if a.modifiers != 0b101 {
		t.Errorf("expected modifiers 0b101, got %b", a.modifiers)
	}
}

func TestSetLocation_StalledWorkerStillServesFinalLocation(t *testing.T) {
	// The worker never runs here, standing in for a stalled one: requests
	// pile up in the queue instead of being served.
	dirs := make([]string, 6)
	for i := range dirs {
		dirs[i] = t.TempDir()
	}
	marker := filepath.Join(dirs[5], "final.txt")
	if err := os.WriteFile(marker, []byte("f"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, _ := newTestApp(t, dirs[0])
	for _, d := range dirs[1:] {
		a.onSetLocation(tab.Location(d))
	}

	// Superseded requests were drained; exactly one remains, and it carries
	// the final location at the current epoch.
	var req scan.Request
	select {
	case req = <-a.worker.RequestChan:
	default:
		t.Fatal("no rescan queued for the final location")
	}
	if req.Location != tab.Location(dirs[5]) {
		t.Fatalf("queued rescan is for %q, want %q", req.Location, dirs[5])
	}
	if req.Epoch != a.epoch {
		t.Fatalf("queued rescan has stale epoch %d, current %d", req.Epoch, a.epoch)
	}
	if got := drainRescans(a); got != 0 {
		t.Fatalf("%d superseded requests left in the queue", got)
	}

	// Serving that one request brings the listing up to date
	items, err := scan.ReadListing(string(req.Location), req.Options)
	if err != nil {
		t.Fatal(err)
	}
	a.onScanResponse(scan.Response{Location: req.Location, Epoch: req.Epoch, Items: items})

	if a.tab.ItemByPath(marker) == nil {
		t.Error("final location's listing never arrived")
	}
}

func TestBatchAfterCloseDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	a, _ := newTestApp(t, dir)

	a.Close()
	a.Close() // idempotent

	// A batch dispatched during shutdown must not crash the loop
	a.onBatch(watch.Batch{{Path: filepath.Join(dir, "new.txt"), Kind: watch.KindCreate}})

	if got := drainRescans(a); got != 1 {
		t.Errorf("expected the shutdown-race rescan to queue harmlessly, got %d", got)
	}
}

func TestSetLocation_SameLocationIsNoOp(t *testing.T) {
	dir := t.TempDir()
	a, _ := newTestApp(t, dir)
	drainRescans(a)

	before := a.epoch
	a.onSetLocation(tab.Location(dir))
	if a.epoch != before {
		t.Error("setting the same location must not bump the epoch")
	}
	if drainRescans(a) != 0 {
		t.Error("setting the same location must not issue a rescan")
	}
}

// TestRunLoop_SurfacesViaMessages exercises the live loop end to end for the
// output path, which is observable race-free through the fake compositor.
func TestRunLoop_SurfacesViaMessages(t *testing.T) {
	dir := t.TempDir()
	fc := &fakeCompositor{}
	a := New(testConfig(dir), fc)
	go a.Run()
	defer a.Close()

	a.Send(OutputAttached{Output: 1, Name: "DP-1"})
	a.Send(OutputRemoved{Output: 1})

	deadline := time.After(5 * time.Second)
	for {
		created, destroyed := fc.counts()
		if created == 1 && destroyed == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout: %d creates, %d destroys", created, destroyed)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
