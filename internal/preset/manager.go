package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"rlm-translate/internal/logging"
)

// Manager loads, saves and serves translation presets. Built-in presets
// are always present; user presets live as one JSON file per preset under
// the presets directory, keyed by filename stem. A user file under a
// built-in key shadows the built-in without removing it.
type Manager struct {
	dir string
	log logging.Logger

	mu      sync.RWMutex
	presets map[string]*Preset
}

// NewManager creates a manager over the given directory, creating it if
// needed, and loads built-in plus user presets.
func NewManager(dir string, log logging.Logger) (*Manager, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating presets directory %s: %w", dir, err)
	}

	m := &Manager{
		dir:     dir,
		log:     log.WithComponent("preset"),
		presets: make(map[string]*Preset),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()
	return m, nil
}

// loadLocked rebuilds the preset map from built-ins and user files. The
// caller holds the write lock.
func (m *Manager) loadLocked() {
	m.presets = BuiltinPresets()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.log.Warn("cannot read presets directory", "dir", m.dir, "error", err.Error())
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")

		p, err := readPresetFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			m.log.Warn("skipping unreadable preset file", "file", entry.Name(), "error", err.Error())
			continue
		}
		if err := p.Validate(); err != nil {
			m.log.Warn("skipping invalid preset file", "file", entry.Name(), "error", err.Error())
			continue
		}
		m.presets[key] = p
	}
}

func readPresetFile(path string) (*Preset, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- files under the managed presets dir
	if err != nil {
		return nil, err
	}
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing preset: %w", err)
	}
	return &p, nil
}

// Reload re-reads built-in and user presets from disk.
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()
}

// Get returns a copy of the preset under key.
func (m *Manager) Get(key string) (*Preset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.presets[key]
	if !ok {
		return nil, fmt.Errorf("preset %q not found", key)
	}
	return p.Clone(), nil
}

// List returns all preset keys: built-ins in display order, then user
// presets sorted by key.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.presets))
	keys = append(keys, BuiltinKeys...)

	var custom []string
	for key := range m.presets {
		if !IsBuiltin(key) {
			custom = append(custom, key)
		}
	}
	sort.Strings(custom)
	return append(keys, custom...)
}

// ListInfo returns display summaries for all presets in List order.
func (m *Manager) ListInfo() []Info {
	keys := m.List()

	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(keys))
	for _, key := range keys {
		p, ok := m.presets[key]
		if !ok {
			continue
		}
		infos = append(infos, Info{
			Key:          key,
			Name:         p.Name,
			Description:  p.Description,
			DocumentType: p.DocumentType,
			Builtin:      IsBuiltin(key),
		})
	}
	return infos
}

// Save validates and persists a preset under key, making it visible
// immediately.
func (m *Manager) Save(key string, p *Preset) error {
	if key == "" {
		return fmt.Errorf("preset key must not be empty")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	stored := p.Clone()
	stored.Touch()

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preset %q: %w", key, err)
	}

	path := filepath.Join(m.dir, key+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing preset %q: %w", key, err)
	}

	m.mu.Lock()
	m.presets[key] = stored
	m.mu.Unlock()

	m.log.Info("preset saved", "key", key, "file", path)
	return nil
}

// CreateCustom derives a new preset from an existing one. The customize
// callback receives the copy before it is saved.
func (m *Manager) CreateCustom(key, name, baseKey string, customize func(*Preset)) (*Preset, error) {
	base, err := m.Get(baseKey)
	if err != nil {
		base = createGeneralPreset()
	}

	p := base.Clone()
	p.Name = name
	p.Version = 1
	p.CreatedAt = ""
	p.ModifiedAt = ""
	if customize != nil {
		customize(p)
	}

	if err := m.Save(key, p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Delete removes a user preset. Built-in presets cannot be deleted; a
// user file shadowing a built-in is removed and the built-in restored.
func (m *Manager) Delete(key string) error {
	path := filepath.Join(m.dir, key+".json")

	if IsBuiltin(key) {
		// Drop the shadowing file, if any, and restore the built-in.
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("cannot delete built-in preset %q", key)
			}
			return fmt.Errorf("removing preset file %q: %w", key, err)
		}
		m.mu.Lock()
		m.presets[key] = BuiltinPresets()[key]
		m.mu.Unlock()
		m.log.Info("built-in preset restored", "key", key)
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing preset file %q: %w", key, err)
	}

	m.mu.Lock()
	delete(m.presets, key)
	m.mu.Unlock()

	m.log.Info("preset deleted", "key", key)
	return nil
}

// ExportJSON writes the preset under key to an external JSON file.
func (m *Manager) ExportJSON(key, path string) error {
	p, err := m.Get(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preset %q: %w", key, err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ExportYAML writes the preset under key to an external YAML file.
func (m *Manager) ExportYAML(key, path string) error {
	p, err := m.Get(key)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding preset %q: %w", key, err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Import reads a preset from an external JSON file and saves it. When key
// is empty the filename stem is used.
func (m *Manager) Import(path, key string) (*Preset, error) {
	p, err := readPresetFile(path)
	if err != nil {
		return nil, fmt.Errorf("importing preset from %s: %w", path, err)
	}
	if key == "" {
		key = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := m.Save(key, p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}
