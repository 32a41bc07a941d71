package tuning

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Load parses the embedded tuning YAML and validates its values.
func Load() (*Config, error) {
	data, err := configFiles.ReadFile("config/sync.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded tuning config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal tuning config: %w", err)
	}

	if cfg.Sync.IdleDelayMS <= 0 {
		return nil, fmt.Errorf("sync.idle_delay_ms must be positive, got %d", cfg.Sync.IdleDelayMS)
	}
	if cfg.Sync.MaxContentBytes <= 0 {
		return nil, fmt.Errorf("sync.max_content_bytes must be positive, got %d", cfg.Sync.MaxContentBytes)
	}
	if cfg.Session.TitleMaxRunes <= 0 {
		return nil, fmt.Errorf("session.title_max_runes must be positive, got %d", cfg.Session.TitleMaxRunes)
	}
	if cfg.Audit.BufferSize <= 0 {
		return nil, fmt.Errorf("audit.buffer_size must be positive, got %d", cfg.Audit.BufferSize)
	}

	return &cfg, nil
}
