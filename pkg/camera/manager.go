package camera

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Manager holds the current camera configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// Callback when config changes (for reopening the camera)
	OnConfigChange func(cfg Config) error
}

// NewManager creates a camera manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg, then notifies the callback.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}
	return nil
}

// UpdateConfig updates specific fields of the configuration.
// A "preset" key is applied first, then individual fields override it.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device
	}

	for key, value := range params {
		switch key {
		case "device":
			if v, ok := value.(string); ok {
				cfg.Device = v
			}
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "quality":
			if v, ok := toInt(value); ok {
				cfg.Quality = v
			}
		case "mirror":
			if v, ok := value.(bool); ok {
				cfg.Mirror = v
			}
		case "max_read_failures":
			if v, ok := toInt(value); ok {
				cfg.MaxReadFailures = v
			}
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	data, _ := json.Marshal(m.GetConfig())
	var result map[string]interface{}
	json.Unmarshal(data, &result)
	return result
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
