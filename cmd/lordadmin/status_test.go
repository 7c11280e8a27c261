package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/onioktairawan/lordadmin/internal/core"
	"github.com/onioktairawan/lordadmin/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectStatus_ReplaysJournal(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.jsonl")

	j, err := journal.NewJSONL(journalPath)
	require.NoError(t, err)
	ctx := context.Background()
	for _, fill := range []func(*journal.Entry){
		func(e *journal.Entry) { e.Kind, e.UserID, e.DisplayName = journal.KindObserve, "42", "Bob" },
		func(e *journal.Entry) { e.Kind, e.UserID, e.DisplayName = journal.KindObserve, "7", "Dave" },
		func(e *journal.Entry) { e.Kind, e.ChatID, e.UserID, e.Label = journal.KindBan, "-100", "42", "Bob" },
		func(e *journal.Entry) { e.Kind, e.ChatID, e.UserID, e.Label = journal.KindBan, "-200", "7", "Dave" },
		func(e *journal.Entry) { e.Kind, e.ChatID, e.UserID = journal.KindUnban, "-200", "7" },
		func(e *journal.Entry) { e.Kind, e.ChatID, e.UserID, e.Restricted = journal.KindRestrict, "-300", "7", true },
		func(e *journal.Entry) { e.Kind, e.ChatID, e.UserID, e.Restricted = journal.KindRestrict, "-100", "9", true },
		func(e *journal.Entry) { e.Kind, e.ChatID, e.UserID, e.Restricted = journal.KindRestrict, "-100", "9", false },
	} {
		e := journal.NewEntry(journal.KindObserve)
		e.Platform = "telegram"
		fill(&e)
		require.NoError(t, j.Append(ctx, e))
	}
	require.NoError(t, j.Close())

	config, err := core.LoadConfig(writeConfig(t, `
bots:
  telegram:
    enabled: true
    token: "abc"
storage:
  driver: "jsonl"
  path: "`+journalPath+`"
`))
	require.NoError(t, err)

	status, err := collectStatus(ctx, config)
	require.NoError(t, err)

	assert.Equal(t, "jsonl", status.Storage)
	assert.Equal(t, 8, status.Entries)
	require.Len(t, status.Platforms, 1)
	assert.Equal(t, "telegram", status.Platforms[0].Platform)
	assert.Equal(t, 2, status.Platforms[0].Identities)
	assert.Equal(t, map[string]int{"-100": 1}, status.Platforms[0].Bans)
	assert.Equal(t, map[string]int{"-300": 1}, status.Platforms[0].Muted)

	var out bytes.Buffer
	outputStatus(&out, status, false)
	assert.Contains(t, out.String(), "telegram: 2 known members")
	assert.Contains(t, out.String(), "-100: 1 banned, 0 muted")
	assert.Contains(t, out.String(), "-300: 0 banned, 1 muted")
}

func TestCollectStatus_MemoryJournalIsEmpty(t *testing.T) {
	config, err := core.LoadConfig(writeConfig(t, `
bots:
  telegram:
    enabled: true
    token: "abc"
`))
	require.NoError(t, err)

	status, err := collectStatus(context.Background(), config)
	require.NoError(t, err)
	assert.Zero(t, status.Entries)
	assert.Empty(t, status.Platforms)
}

func TestBuildAdapters(t *testing.T) {
	config, err := core.LoadConfig(writeConfig(t, `
bots:
  discord:
    enabled: true
    token: "d"
    channel_id: "welcome"
  telegram:
    enabled: true
    token: "t"
`))
	require.NoError(t, err)

	engine := core.NewEngine(config, nil)
	t.Cleanup(func() { _ = engine.Stop() })

	adapters := buildAdapters(config, engine)
	require.Len(t, adapters, 2)
	assert.Equal(t, "telegram", adapters[0].Name())
	assert.Equal(t, "discord", adapters[1].Name())
}
