package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Config holds all user-configurable settings loaded from config.json
type Config struct {
	StartPath  string           `json:"startPath"` // Empty means desktop dir, falling back to home
	Listing    ListingConfig    `json:"listing"`
	Watch      WatchConfig      `json:"watch"`
	Thumbnails ThumbnailsConfig `json:"thumbnails"`
}

// ListingConfig holds directory listing display settings
type ListingConfig struct {
	ShowHidden    bool   `json:"showHidden"`
	Sort          string `json:"sort"` // "name" | "date" | "size"
	SortAscending bool   `json:"sortAscending"`
}

// WatchConfig holds filesystem watch and debounce settings
type WatchConfig struct {
	DebounceMs    int `json:"debounceMs"`    // Coalescing window for raw events
	BatchCapacity int `json:"batchCapacity"` // Buffered batches before drops
}

// ThumbnailsConfig holds thumbnail generation settings
type ThumbnailsConfig struct {
	Enabled   bool `json:"enabled"`
	MaxPixels int  `json:"maxPixels"` // Maximum thumbnail dimension (width or height)
	CacheDB   bool `json:"cacheDB"`   // Persist thumbnails in the sqlite cache
}

// Manager handles loading, saving, and accessing configuration
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	parseErr error // Stores parsing error if config failed to load
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: DefaultConfig(),
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		StartPath: "",
		Listing: ListingConfig{
			ShowHidden:    false,
			Sort:          "name",
			SortAscending: true,
		},
		Watch: WatchConfig{
			DebounceMs:    250,
			BatchCapacity: 100,
		},
		Thumbnails: ThumbnailsConfig{
			Enabled:   true,
			MaxPixels: 256,
			CacheDB:   true,
		},
	}
}

// ConfigPath returns the config file path: ~/.config/underlay/config.json
// This is consistent across all platforms (Windows, macOS, Linux)
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "underlay", "config.json")
}

// Load reads the configuration from the config file
// If the file doesn't exist, creates it with defaults
// If parsing fails, stores the error and returns defaults
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.path = ConfigPath()
	m.parseErr = nil

	// Ensure config directory exists
	configDir := filepath.Dir(m.path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		log.Printf("Config: failed to create directory %s: %v", configDir, err)
		return err
	}

	// Try to read existing config
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		// Create default config file
		log.Printf("Config: creating default config at %s", m.path)
		m.config = DefaultConfig()
		if saveErr := m.saveUnlocked(); saveErr != nil {
			log.Printf("Config: failed to save default config: %v", saveErr)
			return saveErr
		}
		return nil
	}
	if err != nil {
		log.Printf("Config: failed to read %s: %v", m.path, err)
		return err
	}

	// Parse JSON
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		// Store error, keep running on defaults
		log.Printf("Config: JSON parse error: %v", err)
		m.parseErr = err
		m.config = DefaultConfig()
		return nil // Don't return error - we're using defaults
	}

	if cfg.Watch.DebounceMs <= 0 {
		cfg.Watch.DebounceMs = DefaultConfig().Watch.DebounceMs
	}
	if cfg.Watch.BatchCapacity <= 0 {
		cfg.Watch.BatchCapacity = DefaultConfig().Watch.BatchCapacity
	}
	if cfg.Thumbnails.MaxPixels <= 0 {
		cfg.Thumbnails.MaxPixels = DefaultConfig().Thumbnails.MaxPixels
	}

	m.config = &cfg
	return nil
}

// saveUnlocked saves config without acquiring lock (caller must hold lock)
func (m *Manager) saveUnlocked() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnlocked()
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return *DefaultConfig()
	}
	return *m.config
}

// ParseError returns the parsing error if config failed to load
func (m *Manager) ParseError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parseErr
}
