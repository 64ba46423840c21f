package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager provides thread-safe, read-only configuration management. The
// configuration file is never modified by the application; all updates come
// from external sources (orchestration tools, volume mounts). An invalid
// update leaves the last known good configuration active.
type Manager interface {
	// GetConfig safely retrieves the current configuration
	GetConfig() *Config

	// Reload reads the latest configuration from disk and applies it if valid
	Reload() error

	// Watch observes the configuration file for external changes and reloads
	// on updates. Blocks until the context is cancelled.
	Watch(ctx context.Context) error

	// Close releases the file watcher resources
	Close() error
}

// manager is the concrete implementation of Manager
type manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watcher    *fsnotify.Watcher
	watcherMu  sync.Mutex
}

// NewManager creates a new Manager for the given configuration file path.
// It loads and validates the initial configuration.
func NewManager(configPath string) (Manager, error) {
	m := &manager{
		configPath: configPath,
	}

	if err := m.Reload(); err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}

	return m, nil
}

// GetConfig safely retrieves the current configuration. Multiple goroutines
// can call this concurrently.
func (m *manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Shallow copy to prevent external modifications
	configCopy := *m.config
	return &configCopy
}

// Reload reads the configuration file and applies it if valid. If the new
// configuration is invalid, the previous configuration remains active.
func (m *manager) Reload() error {
	newConfig, err := LoadConfig(WithConfigPath(m.configPath))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = newConfig
	m.mu.Unlock()

	slog.Info("Configuration reloaded", "path", m.configPath)
	return nil
}

// Watch observes the configuration file for external changes. Blocks until
// the context is cancelled.
func (m *manager) Watch(ctx context.Context) error {
	m.watcherMu.Lock()
	if m.watcher != nil {
		m.watcherMu.Unlock()
		return fmt.Errorf("config watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.watcherMu.Unlock()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	m.watcher = watcher
	m.watcherMu.Unlock()

	if err := watcher.Add(m.configPath); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", m.configPath, err)
	}

	slog.Info("Watching configuration file", "path", m.configPath)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping config file watcher")
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				slog.Info("External config update detected, reloading")

				if err := m.Reload(); err != nil {
					// Previous config remains active
					slog.Error("Failed to reload config", "error", err)
				}
			}

			// Atomic symlink swaps remove and recreate the file
			if event.Has(fsnotify.Remove) {
				slog.Debug("Config file removed, re-watching")
				_ = watcher.Add(m.configPath)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

// Close releases resources held by the manager
func (m *manager) Close() error {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			return fmt.Errorf("failed to close file watcher: %w", err)
		}
		m.watcher = nil
	}

	return nil
}
