package watch

import (
	"github.com/fsnotify/fsnotify"

	"github.com/underlay-sh/underlay/internal/debug"
)

// Session is the handle to the live watch registration set. The engine
// creates it once and hands it to the coordinator loop via Ready(); after
// that, all Watch/Unwatch/Reconcile calls come from the loop goroutine.
type Session struct {
	watcher  *fsnotify.Watcher
	watching map[string]bool
}

func newSession(w *fsnotify.Watcher) *Session {
	return &Session{
		watcher:  w,
		watching: make(map[string]bool),
	}
}

// Watch adds a path to the watch set. Watching an already-watched path is a
// no-op so duplicate requests never double-register.
func (s *Session) Watch(path string) error {
	if s.watching[path] {
		return nil
	}

	if err := s.watcher.Add(path); err != nil {
		return err
	}

	s.watching[path] = true
	debug.Log(debug.WATCH, "now watching %s", path)
	return nil
}

// Unwatch removes a path from the watch set. Removal errors are swallowed -
// the path may already be gone, and a leftover registration at worst causes
// a redundant future batch.
func (s *Session) Unwatch(path string) error {
	if !s.watching[path] {
		return nil
	}

	if err := s.watcher.Remove(path); err != nil {
		debug.Log(debug.WATCH, "failed to unwatch %s: %v", path, err)
	}

	delete(s.watching, path)
	debug.Log(debug.WATCH, "stopped watching %s", path)
	return nil
}

// Reconcile adjusts the watch set to exactly the target paths, touching only
// the symmetric difference: registrations still wanted are left alone.
// It returns the paths actually added and removed.
func (s *Session) Reconcile(target []string) (added, removed []string) {
	want := make(map[string]bool, len(target))
	for _, p := range target {
		want[p] = true
	}

	for p := range s.watching {
		if !want[p] {
			removed = append(removed, p)
		}
	}
	for _, p := range removed {
		s.Unwatch(p)
	}

	for _, p := range target {
		if !s.watching[p] {
			if err := s.Watch(p); err != nil {
				debug.Log(debug.WATCH, "failed to watch %s: %v", p, err)
				continue
			}
			added = append(added, p)
		}
	}

	return added, removed
}

// Watching returns the currently watched paths.
func (s *Session) Watching() []string {
	paths := make([]string, 0, len(s.watching))
	for p := range s.watching {
		paths = append(paths, p)
	}
	return paths
}
