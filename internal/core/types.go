package core

import "time"

// Config represents the complete lordadmin configuration structure
type Config struct {
	Bots       map[string]BotConfig `yaml:"bots"`
	Moderation ModerationConfig     `yaml:"moderation"`
	Messages   MessagesConfig       `yaml:"messages"`
	Storage    StorageConfig        `yaml:"storage"`
	Logging    LoggingConfig        `yaml:"logging"`
}

// BotConfig represents bot configuration
type BotConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"` // Discord: welcome channel, defaults to the guild system channel
}

// ModerationConfig tunes authorization, platform calls and notifications
type ModerationConfig struct {
	AdminCacheTTL       string  `yaml:"admin_cache_ttl"`      // Validity window of a cached admin set (e.g., "60s")
	CollaboratorTimeout string  `yaml:"collaborator_timeout"` // Bound on every platform call (e.g., "10s")
	KickMode            string  `yaml:"kick_mode"`            // kick or permanent
	NotifyRate          float64 `yaml:"notify_rate"`          // Admin messages per second
	NotifyBurst         int     `yaml:"notify_burst"`

	adminCacheTTL       time.Duration
	collaboratorTimeout time.Duration
}

// AdminCacheTTLDuration returns the parsed admin_cache_ttl
func (m ModerationConfig) AdminCacheTTLDuration() time.Duration { return m.adminCacheTTL }

// CollaboratorTimeoutDuration returns the parsed collaborator_timeout
func (m ModerationConfig) CollaboratorTimeoutDuration() time.Duration { return m.collaboratorTimeout }

// MessagesConfig overrides user-visible texts. Empty fields keep the defaults.
type MessagesConfig struct {
	Welcome string `yaml:"welcome"` // %s is replaced by the member's name
	Rules   string `yaml:"rules"`
	Menu    string `yaml:"menu"`
}

// StorageConfig selects the journal backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, jsonl or sqlite
	Path   string `yaml:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout
}
