package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"
)

// UserLimits holds per-tier daily request limits
type UserLimits struct {
	Default int `json:"default"`
	VIP     int `json:"vip"`
}

// AlertContacts holds destinations for quota threshold alerts
type AlertContacts struct {
	Email          string `json:"email,omitempty"`
	TelegramChatID string `json:"telegramChatId,omitempty"`
}

// Settings is the runtime-adjustable part of the configuration,
// persisted as JSON and hot-reloaded on file change
type Settings struct {
	DailyQuotaTotal int           `json:"dailyQuotaTotal"`
	UserLimits      UserLimits    `json:"userLimits"`
	CachePriority   []string      `json:"cachePriority"`
	Alerts          AlertContacts `json:"alerts"`
}

// DefaultSettings returns the documented defaults used when no config file exists
func DefaultSettings() Settings {
	return Settings{
		DailyQuotaTotal: 10000,
		UserLimits:      UserLimits{Default: 5, VIP: 10},
		CachePriority:   []string{},
	}
}

const maxBackups = 10

// Manager loads, persists and hot-reloads the runtime settings file
type Manager struct {
	mu         sync.RWMutex
	settings   Settings
	configFile string
	watcher    *fsnotify.Watcher
}

// NewManager creates a settings manager backed by the given JSON file.
// A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}

	if err := m.load(); err != nil {
		return nil, err
	}

	if err := m.startWatcher(); err != nil {
		log.Printf("⚠️ Settings file watcher failed to start: %v", err)
	}

	return m, nil
}

// load reads the settings file, creating it with defaults when absent
func (m *Manager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		m.settings = DefaultSettings()
		return m.saveLocked()
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	settings, err := parseSettings(data)
	if err != nil {
		return err
	}

	m.settings = settings
	return nil
}

// parseSettings validates the raw JSON shape before unmarshaling.
// Malformed or mistyped documents are rejected rather than half-applied.
func parseSettings(data []byte) (Settings, error) {
	if !gjson.ValidBytes(data) {
		return Settings{}, fmt.Errorf("settings file is not valid JSON")
	}

	settings := DefaultSettings()

	doc := gjson.ParseBytes(data)
	if v := doc.Get("dailyQuotaTotal"); v.Exists() {
		if v.Type != gjson.Number || v.Int() <= 0 {
			return Settings{}, fmt.Errorf("dailyQuotaTotal must be a positive number")
		}
	}
	if v := doc.Get("userLimits.default"); v.Exists() && (v.Type != gjson.Number || v.Int() <= 0) {
		return Settings{}, fmt.Errorf("userLimits.default must be a positive number")
	}
	if v := doc.Get("cachePriority"); v.Exists() && !v.IsArray() {
		return Settings{}, fmt.Errorf("cachePriority must be an array of channel ids")
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if settings.CachePriority == nil {
		settings.CachePriority = []string{}
	}
	return settings, nil
}

// saveLocked writes the settings to disk with a timestamped backup of the old file
func (m *Manager) saveLocked() error {
	data, err := json.MarshalIndent(m.settings, "", "  ")
	if err != nil {
		return err
	}

	if _, err := os.Stat(m.configFile); err == nil {
		m.backupLocked()
	}

	dir := filepath.Dir(m.configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	return os.WriteFile(m.configFile, data, 0644)
}

// backupLocked copies the current file into a backups dir, keeping the newest maxBackups
func (m *Manager) backupLocked() {
	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return
	}

	backupDir := filepath.Join(filepath.Dir(m.configFile), "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return
	}

	name := fmt.Sprintf("%s.%s.bak", filepath.Base(m.configFile), time.Now().Format("20060102-150405"))
	if err := os.WriteFile(filepath.Join(backupDir, name), data, 0644); err != nil {
		return
	}

	m.cleanupOldBackups(backupDir)
}

func (m *Manager) cleanupOldBackups(backupDir string) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return
	}

	if len(entries) <= maxBackups {
		return
	}

	// Entries sort by name and names carry the timestamp, so the oldest come first
	for i := 0; i < len(entries)-maxBackups; i++ {
		os.Remove(filepath.Join(backupDir, entries[i].Name()))
	}
}

// startWatcher watches the settings file and reloads it on write
func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	m.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					log.Printf("🔄 Settings file changed, reloading...")
					if err := m.load(); err != nil {
						log.Printf("⚠️ Settings reload failed: %v", err)
					} else {
						log.Printf("✅ Settings reloaded")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ Settings watcher error: %v", err)
			}
		}
	}()

	return watcher.Add(m.configFile)
}

// Close stops the file watcher
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// Get returns a copy of the current settings
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings := m.settings
	// Copy stays non-nil when the list is empty so it serializes as []
	settings.CachePriority = make([]string, 0, len(m.settings.CachePriority))
	settings.CachePriority = append(settings.CachePriority, m.settings.CachePriority...)
	return settings
}

// IsPriorityChannel reports whether the channel is in the priority set
func (m *Manager) IsPriorityChannel(channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.settings.CachePriority {
		if id == channelID {
			return true
		}
	}
	return false
}

// AddPriorityChannel adds a channel to the priority set and persists the change.
// Adding an already-present channel is a no-op.
func (m *Manager) AddPriorityChannel(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.settings.CachePriority {
		if id == channelID {
			return nil
		}
	}
	m.settings.CachePriority = append(m.settings.CachePriority, channelID)
	return m.saveLocked()
}

// RemovePriorityChannel removes a channel from the priority set and persists the change
func (m *Manager) RemovePriorityChannel(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.settings.CachePriority[:0]
	for _, id := range m.settings.CachePriority {
		if id != channelID {
			kept = append(kept, id)
		}
	}
	m.settings.CachePriority = kept
	return m.saveLocked()
}

// ApplyJSON replaces the settings with the given JSON document after validation.
// Used by the admin PATCH endpoint, which builds the document with sjson.
func (m *Manager) ApplyJSON(data []byte) error {
	settings, err := parseSettings(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	return m.saveLocked()
}

// RawJSON returns the current settings serialized to JSON
func (m *Manager) RawJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.settings)
}
