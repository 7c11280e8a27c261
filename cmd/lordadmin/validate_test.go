package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/onioktairawan/lordadmin/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
bots:
  telegram:
    enabled: true
    token: "abc"
`)

	var out bytes.Buffer
	assert.True(t, runValidate(&out, path, false, false))
	assert.Contains(t, out.String(), "Configuration is valid")
	assert.Contains(t, out.String(), "Bots enabled: 1")
	assert.Contains(t, out.String(), "Storage driver is memory")
}

func TestRunValidate_JSON(t *testing.T) {
	path := writeConfig(t, `
bots:
  discord:
    enabled: true
    token: "abc"
moderation:
  kick_mode: "permanent"
storage:
  driver: "sqlite"
  path: "/tmp/lordadmin-test/journal.db"
`)

	var out bytes.Buffer
	require.True(t, runValidate(&out, path, true, true))

	var result ValidationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.Bots)
	assert.Equal(t, "sqlite", result.Storage)
	assert.Equal(t, core.KickModePermanent, result.KickMode)
	assert.Len(t, result.Warnings, 2)
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
bots:
  telegram:
    enabled: true
`)

	var out bytes.Buffer
	assert.False(t, runValidate(&out, path, false, true))

	var result ValidationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "bots.telegram.token is required")
}

func TestRunValidate_Show(t *testing.T) {
	path := writeConfig(t, `
bots:
  telegram:
    enabled: true
    token: "abc"
  discord:
    enabled: false
`)

	var out bytes.Buffer
	require.True(t, runValidate(&out, path, true, false))
	assert.Contains(t, out.String(), "  - telegram: enabled")
	assert.Contains(t, out.String(), "  - discord: disabled")
	assert.Contains(t, out.String(), "admin_cache_ttl: 1m0s")
}

func TestValidateConfigDetails(t *testing.T) {
	cfg := &core.Config{
		Bots: map[string]core.BotConfig{
			"discord": {Enabled: true, Token: "t", ChannelID: "123"},
		},
		Storage:    core.StorageConfig{Driver: "jsonl", Path: "/tmp/j.jsonl"},
		Moderation: core.ModerationConfig{KickMode: core.KickModeKick},
	}
	assert.Empty(t, validateConfigDetails(cfg))

	cfg.Bots["discord"] = core.BotConfig{Enabled: true, Token: "t"}
	assert.Equal(t, []string{
		"Discord channel_id is empty - welcome messages go to the guild system channel",
	}, validateConfigDetails(cfg))
}
