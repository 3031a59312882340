package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowConfig(),
		Preset720p:    HD720Config(),
		Preset1080p:   HD1080Config(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetLow, Preset720p, Preset1080p}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowConfig returns 320x240 for slow machines. Landmarks get noticeably noisier.
func LowConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Quality = 75
	return cfg
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p Full HD configuration. Most webcams drop to 15 FPS here.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Framerate = 15
	return cfg
}
