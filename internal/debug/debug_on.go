//go:build debug

// Package debug provides a centralized, categorized debug logging system.
// Build with -tags debug to enable logging.
package debug

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Enabled indicates whether debug logging is active
const Enabled = true

// Category represents a debug logging category
type Category string

const (
	// Core categories
	APP    Category = "APP"    // Coordinator loop, state transitions
	OUTPUT Category = "OUTPUT" // Output attach/detach, surface lifecycle
	WATCH  Category = "WATCH"  // Watch session, debounce batches
	SCAN   Category = "SCAN"   // Directory rescans, classification, patches
	STORE  Category = "STORE"  // Thumbnail cache database
	THUMB  Category = "THUMB"  // Thumbnail decoding and scaling

	// Detailed subcategories (use sparingly - can be verbose)
	WATCH_RAW  Category = "WATCH_RAW"  // Individual raw fsnotify events (very verbose)
	SCAN_ENTRY Category = "SCAN_ENTRY" // Individual entry processing during rescans
)

var (
	// enabledCategories controls which categories are active
	// By default, all main categories are enabled
	enabledCategories = map[Category]bool{
		APP:    true,
		OUTPUT: true,
		WATCH:  true,
		SCAN:   true,
		STORE:  true,
		THUMB:  true,
		// Verbose categories disabled by default
		WATCH_RAW:  false,
		SCAN_ENTRY: false,
	}
	categoryMu sync.RWMutex

	// Output destination
	logger = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
)

func init() {
	// Check environment variable for category overrides
	// Format: UNDERLAY_DEBUG=APP,WATCH,SCAN or UNDERLAY_DEBUG=all or UNDERLAY_DEBUG=none
	if env := os.Getenv("UNDERLAY_DEBUG"); env != "" {
		categoryMu.Lock()
		defer categoryMu.Unlock()

		env = strings.ToUpper(env)
		switch env {
		case "ALL":
			for cat := range enabledCategories {
				enabledCategories[cat] = true
			}
		case "NONE":
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
		default:
			// Disable all first, then enable specified
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
			for _, cat := range strings.Split(env, ",") {
				cat = strings.TrimSpace(cat)
				enabledCategories[Category(cat)] = true
			}
		}
	}
}

// Log logs a debug message for the specified category
func Log(cat Category, format string, args ...interface{}) {
	categoryMu.RLock()
	enabled := enabledCategories[cat]
	categoryMu.RUnlock()

	if !enabled {
		return
	}

	msg := fmt.Sprintf(format, args...)
	logger.Printf("[%s] %s", cat, msg)
}

// Enable enables a debug category
func Enable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = true
	categoryMu.Unlock()
}

// Disable disables a debug category
func Disable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = false
	categoryMu.Unlock()
}

// IsEnabled returns whether a category is enabled
func IsEnabled(cat Category) bool {
	categoryMu.RLock()
	defer categoryMu.RUnlock()
	return enabledCategories[cat]
}
