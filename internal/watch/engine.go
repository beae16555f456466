package watch

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/underlay-sh/underlay/internal/debug"
)

// DefaultWindow is the coalescing window: raw events arriving within it are
// merged, and a batch goes out only after a full window with no new events.
const DefaultWindow = 250 * time.Millisecond

// Engine runs the background watch session for the process lifetime. It
// owns the fsnotify watcher and its coalescing timer; the rest of the
// program sees only the Ready and Batches channels.
type Engine struct {
	window  time.Duration
	batches chan Batch
	ready   chan *Session
	done    chan struct{}

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	once    sync.Once
}

// Start launches the engine. Initialization is asynchronous: on success the
// session handle arrives exactly once on Ready; on failure the failure is
// logged, Ready is closed, and the program runs without filesystem watching.
func Start(window time.Duration, capacity int) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	if capacity <= 0 {
		capacity = 100
	}

	e := &Engine{
		window:  window,
		batches: make(chan Batch, capacity),
		ready:   make(chan *Session, 1),
		done:    make(chan struct{}),
	}
	go e.init()
	return e
}

// Ready delivers the watch session handle once initialization succeeds.
// The channel is closed without a value if the backend is unavailable.
func (e *Engine) Ready() <-chan *Session {
	return e.ready
}

// Batches is the ordered stream of debounced, filtered event batches.
func (e *Engine) Batches() <-chan Batch {
	return e.batches
}

// Close stops the engine and the underlying watch backend.
func (e *Engine) Close() error {
	var err error
	e.once.Do(func() {
		close(e.done)
		e.mu.Lock()
		if e.watcher != nil {
			err = e.watcher.Close()
		}
		e.mu.Unlock()
	})
	return err
}

func (e *Engine) init() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("watch: failed to create file watcher: %v", err)
		close(e.ready)
		return
	}

	e.mu.Lock()
	e.watcher = w
	e.mu.Unlock()

	// Ownership transfer: the session handle is sent exactly once, then only
	// the coordinator loop calls Watch/Unwatch on it.
	e.ready <- newSession(w)

	e.run(w)
}

// run is the debounce loop. It merges raw events until the window elapses
// with no new arrivals, filters the merged set, and emits non-empty batches.
func (e *Engine) run(w *fsnotify.Watcher) {
	var pending Batch
	seen := make(map[Event]bool)

	var timer *time.Timer
	var quiet <-chan time.Time

	for {
		select {
		case <-e.done:
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			ce := classify(ev)
			debug.Log(debug.WATCH_RAW, "raw event: %s %s", ce.Kind, ce.Path)
			if !seen[ce] {
				seen[ce] = true
				pending = append(pending, ce)
			}
			if timer == nil {
				timer = time.NewTimer(e.window)
				quiet = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(e.window)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("watch: backend error: %v", err)

		case <-quiet:
			timer = nil
			quiet = nil

			batch := Filter(pending)
			pending = nil
			seen = make(map[Event]bool)

			// An empty batch after filtering is never emitted
			if len(batch) == 0 {
				continue
			}

			e.emit(batch)
		}
	}
}

// emit queues a batch without ever blocking the delivery goroutine. Under
// coalescing the newest batch supersedes the queued ones, so overflow evicts
// the oldest batch instead of dropping the new arrival.
func (e *Engine) emit(batch Batch) {
	select {
	case e.batches <- batch:
		debug.Log(debug.WATCH, "emitted batch of %d events", len(batch))
		return
	default:
	}

	select {
	case old := <-e.batches:
		log.Printf("watch: batch queue full, evicted oldest batch of %d events", len(old))
	default:
	}

	// This goroutine is the sole producer, so a slot is now free
	e.batches <- batch
}
