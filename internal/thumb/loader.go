// Package thumb generates small preview images for listed files on a
// background goroutine, consulting the persistent cache before decoding.
package thumb

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	// Decoders for the formats the listing previews
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"

	"github.com/underlay-sh/underlay/internal/debug"
	"github.com/underlay-sh/underlay/internal/store"
)

// Result is one finished thumbnail, delivered back to the coordinator loop.
type Result struct {
	Path    string
	ModTime int64 // Unix time the thumbnail was generated for
	PNG     []byte
}

type request struct {
	path  string
	mtime int64
}

// Loader decodes and downscales images off the coordinator loop. Requests
// and results both travel over bounded channels; a full channel drops the
// request (the thumbnail is re-requested on the next rescan anyway).
type Loader struct {
	db        *store.DB // May be an unopened (no-op) cache
	maxPixels int

	requests chan request
	results  chan Result
	done     chan struct{}
	once     sync.Once

	pendingMu sync.Mutex
	pending   map[string]bool
}

// NewLoader starts a loader with the given persistent cache and maximum
// thumbnail dimension.
func NewLoader(db *store.DB, maxPixels int) *Loader {
	if maxPixels <= 0 {
		maxPixels = 256
	}
	l := &Loader{
		db:        db,
		maxPixels: maxPixels,
		requests:  make(chan request, 100),
		results:   make(chan Result, 100),
		done:      make(chan struct{}),
		pending:   make(map[string]bool),
	}
	go l.run()
	return l
}

// Supported reports whether a path looks like an image the loader can decode.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp":
		return true
	default:
		return false
	}
}

// Request queues a path for thumbnail generation. Duplicate in-flight
// requests and full queues are dropped silently.
func (l *Loader) Request(path string, mtime time.Time) {
	if !Supported(path) {
		return
	}

	l.pendingMu.Lock()
	if l.pending[path] {
		l.pendingMu.Unlock()
		return
	}
	l.pending[path] = true
	l.pendingMu.Unlock()

	select {
	case l.requests <- request{path: path, mtime: mtime.Unix()}:
	default:
		l.pendingMu.Lock()
		delete(l.pending, path)
		l.pendingMu.Unlock()
	}
}

// Results delivers finished thumbnails.
func (l *Loader) Results() <-chan Result {
	return l.results
}

// Close stops the background loader.
func (l *Loader) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Loader) run() {
	for {
		select {
		case <-l.done:
			return
		case req := <-l.requests:
			l.load(req)
			l.pendingMu.Lock()
			delete(l.pending, req.path)
			l.pendingMu.Unlock()
		}
	}
}

func (l *Loader) load(req request) {
	if data, ok := l.db.GetThumbnail(req.path, req.mtime); ok {
		debug.Log(debug.THUMB, "cache hit for %s", req.path)
		l.deliver(Result{Path: req.path, ModTime: req.mtime, PNG: data})
		return
	}

	data, err := Generate(req.path, l.maxPixels)
	if err != nil {
		debug.Log(debug.THUMB, "failed to generate thumbnail for %s: %v", req.path, err)
		return
	}

	l.db.PutThumbnail(req.path, req.mtime, data)
	l.deliver(Result{Path: req.path, ModTime: req.mtime, PNG: data})
}

func (l *Loader) deliver(r Result) {
	select {
	case l.results <- r:
	default:
		debug.Log(debug.THUMB, "result channel full, dropping thumbnail for %s", r.Path)
	}
}

// Generate decodes an image file and returns it re-encoded as a PNG no
// larger than maxPixels in either dimension.
func Generate(path string, maxPixels int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxPixels || h > maxPixels {
		scale := float64(maxPixels) / float64(w)
		if h > w {
			scale = float64(maxPixels) / float64(h)
		}
		dw := int(float64(w) * scale)
		dh := int(float64(h) * scale)
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
