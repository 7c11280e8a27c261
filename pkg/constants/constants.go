package constants

import "time"

// Message length limits for different platforms
const (
	// MaxDiscordMessageLength is Discord's message character limit
	MaxDiscordMessageLength = 2000
	// MaxTelegramMessageLength is Telegram's message character limit
	MaxTelegramMessageLength = 4096
)

// Timeouts and windows
const (
	// DefaultPollTimeout is the timeout for Telegram long polling
	DefaultPollTimeout = 60 * time.Second
	// DefaultCollaboratorTimeout bounds every call into the chat platform
	DefaultCollaboratorTimeout = 10 * time.Second
	// DefaultAdminCacheTTL is how long a fetched administrator list stays valid
	DefaultAdminCacheTTL = 60 * time.Second
	// MaxDiscordTimeout is the longest timeout Discord accepts for a member (28 days)
	MaxDiscordTimeout = 28 * 24 * time.Hour
)

// Notification pacing
const (
	// DefaultNotifyRate is the number of admin notifications sent per second
	DefaultNotifyRate = 25
	// DefaultNotifyBurst is the burst size for admin notifications
	DefaultNotifyBurst = 25
)

// Buffer sizes
const (
	// EventChannelBufferSize is the buffer size of the engine's inbound event channel
	EventChannelBufferSize = 100
	// MaxChatQueueLength caps the events waiting for one chat's worker; the
	// excess is dropped
	MaxChatQueueLength = 1024
)

// Command parsing limits
const (
	// MaxCommandInputLength rejects oversized inputs before parsing
	MaxCommandInputLength = 4096
	// MaxCommandNameLength is the longest command name accepted (Telegram allows 32)
	MaxCommandNameLength = 32
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply partial masking
	MinSecretLengthForMasking = 10
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 7
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)
