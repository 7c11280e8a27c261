// Package core provides the moderation engine and configuration management for lordadmin.
//
// The core package implements the dispatch logic that connects chat platforms
// with the moderation stores. It handles:
//
//   - Configuration loading and validation (from YAML files)
//   - Event classification and command routing
//   - Authorization of privileged commands
//   - Per-chat ordered processing and per-user serialization of mutations
//   - Journal replay at startup and graceful shutdown
//
// # Main Components
//
//   - Engine: Command dispatcher
//   - Config: Configuration structure and loading
//   - Messages: User-visible texts
//
// # Example Configuration
//
//	bots:
//	  telegram:
//	    enabled: true
//	    token: "${TELEGRAM_BOT_TOKEN}"
//	moderation:
//	  admin_cache_ttl: "60s"
//	  kick_mode: "kick"
//	storage:
//	  driver: "jsonl"
//	  path: "~/.lordadmin/journal.jsonl"
package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/onioktairawan/lordadmin/internal/journal"
	"github.com/onioktairawan/lordadmin/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = constants.DefaultLogMaxSize // MB
	DefaultLogMaxBackups = 5
	DefaultLogMaxAge     = constants.DefaultLogMaxAge // days

	DefaultAdminCacheTTL       = "60s"
	DefaultCollaboratorTimeout = "10s"
	DefaultKickMode            = KickModeKick
	DefaultStorageDriver       = journal.DriverMemory
)

// Kick modes
const (
	KickModeKick      = "kick"      // ban then immediately unban, the member may rejoin
	KickModePermanent = "permanent" // ban without unban, recorded like /ban
)

// supportedBots lists the platforms lordadmin has adapters for
var supportedBots = map[string]bool{"telegram": true, "discord": true}

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	// Parse YAML
	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return "" // Return empty string to let config parsing fail
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig fills defaults and rejects inconsistent settings
func validateConfig(config *Config) error {
	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}
	if config.Logging.File != "" {
		path, err := expandHome(config.Logging.File)
		if err != nil {
			return err
		}
		config.Logging.File = path
	}

	// Validate bots
	enabled := 0
	for name, bot := range config.Bots {
		if !supportedBots[name] {
			return fmt.Errorf("unsupported bot type: %s", name)
		}
		if !bot.Enabled {
			continue
		}
		if bot.Token == "" {
			return fmt.Errorf("bots.%s.token is required when the bot is enabled", name)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("at least one bot must be enabled")
	}

	// Moderation defaults
	m := &config.Moderation
	if m.AdminCacheTTL == "" {
		m.AdminCacheTTL = DefaultAdminCacheTTL
	}
	if m.CollaboratorTimeout == "" {
		m.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	if m.KickMode == "" {
		m.KickMode = DefaultKickMode
	}
	if m.NotifyRate == 0 {
		m.NotifyRate = constants.DefaultNotifyRate
	}
	if m.NotifyBurst == 0 {
		m.NotifyBurst = constants.DefaultNotifyBurst
	}

	ttl, err := parsePositiveDuration("moderation.admin_cache_ttl", m.AdminCacheTTL)
	if err != nil {
		return err
	}
	m.adminCacheTTL = ttl

	timeout, err := parsePositiveDuration("moderation.collaborator_timeout", m.CollaboratorTimeout)
	if err != nil {
		return err
	}
	m.collaboratorTimeout = timeout

	if m.KickMode != KickModeKick && m.KickMode != KickModePermanent {
		return fmt.Errorf("moderation.kick_mode must be %q or %q (got %q)", KickModeKick, KickModePermanent, m.KickMode)
	}
	if m.NotifyRate < 0 {
		return fmt.Errorf("moderation.notify_rate must be positive (got %v)", m.NotifyRate)
	}
	if m.NotifyBurst < 1 {
		return fmt.Errorf("moderation.notify_burst must be at least 1 (got %d)", m.NotifyBurst)
	}

	// Storage
	if config.Storage.Driver == "" {
		config.Storage.Driver = DefaultStorageDriver
	}
	switch config.Storage.Driver {
	case journal.DriverMemory:
	case journal.DriverJSONL, journal.DriverSQLite:
		if config.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %s", config.Storage.Driver)
		}
		path, err := expandHome(config.Storage.Path)
		if err != nil {
			return err
		}
		config.Storage.Path = path
	default:
		return fmt.Errorf("unknown storage.driver: %s", config.Storage.Driver)
	}

	return nil
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %v)", field, d)
	}
	return d, nil
}

// GetBotConfig retrieves configuration for a specific bot
func (c *Config) GetBotConfig(botType string) (BotConfig, error) {
	bot, exists := c.Bots[botType]
	if !exists {
		return BotConfig{}, fmt.Errorf("bot type %s not found in configuration", botType)
	}

	if !bot.Enabled {
		return BotConfig{}, fmt.Errorf("bot type %s is disabled", botType)
	}

	return bot, nil
}

// EnabledBots returns the names of enabled bots in a stable order
func (c *Config) EnabledBots() []string {
	var names []string
	for _, name := range []string{"telegram", "discord"} {
		if b, ok := c.Bots[name]; ok && b.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// expandHome expands ~ to user's home directory
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home + path[1:], nil
	}
	return path, nil
}
