package tuning

import "time"

// Config is the full tuning document loaded from the embedded YAML.
type Config struct {
	Sync    SyncTuning    `yaml:"sync"`
	Session SessionTuning `yaml:"session"`
	Audit   AuditTuning   `yaml:"audit"`
}

// SyncTuning controls the debounced save scheduler and save validation.
type SyncTuning struct {
	IdleDelayMS     int `yaml:"idle_delay_ms"`
	MaxContentBytes int `yaml:"max_content_bytes"`
}

// IdleDelay returns the debounce quiet period as a time.Duration.
func (s SyncTuning) IdleDelay() time.Duration {
	return time.Duration(s.IdleDelayMS) * time.Millisecond
}

// SessionTuning controls conversation session behavior.
type SessionTuning struct {
	TitleMaxRunes    int    `yaml:"title_max_runes"`
	ContextSeparator string `yaml:"context_separator"`
}

// AuditTuning controls the audit emitter.
type AuditTuning struct {
	BufferSize int `yaml:"buffer_size"`
}
