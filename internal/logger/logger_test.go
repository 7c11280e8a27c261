package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantLevel logrus.Level
	}{
		{
			name: "file output",
			config: Config{
				Level:      "info",
				File:       filepath.Join(t.TempDir(), "lordadmin.log"),
				MaxSize:    1,
				MaxBackups: 1,
				MaxAge:     1,
			},
			wantLevel: logrus.InfoLevel,
		},
		{
			name:      "stdout only at debug",
			config:    Config{Level: "debug", EnableStdout: true},
			wantLevel: logrus.DebugLevel,
		},
		{
			name:      "invalid level defaults to info",
			config:    Config{Level: "loud", EnableStdout: true},
			wantLevel: logrus.InfoLevel,
		},
		{
			name:      "no writers discards output",
			config:    Config{Level: "warn"},
			wantLevel: logrus.WarnLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, InitLogger(tt.config))
			assert.Equal(t, tt.wantLevel, GetLogger().GetLevel())
		})
	}
}

func TestInitLogger_CreatesLogDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	require.NoError(t, InitLogger(Config{Level: "info", File: filepath.Join(dir, "bot.log")}))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestInitLogger_JSONFormatterAtInfo(t *testing.T) {
	require.NoError(t, InitLogger(Config{Level: "info"}))
	_, ok := GetLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "info level should use JSON formatter")

	require.NoError(t, InitLogger(Config{Level: "debug"}))
	_, ok = GetLogger().Formatter.(*logrus.TextFormatter)
	assert.True(t, ok, "debug level should use text formatter")
}

func TestWithFields_WritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })

	WithFields(logrus.Fields{"chat_id": "-100", "user_id": "42"}).Info("ban-applied")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ban-applied", entry["msg"])
	assert.Equal(t, "-100", entry["chat_id"])
	assert.Equal(t, "42", entry["user_id"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })

	WithComponent("notify").Warn("admin-notify-failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "notify", entry["component"])
	assert.Equal(t, "warning", entry["level"])
}

func TestGetLogger_DefaultsWhenUnset(t *testing.T) {
	SetLogger(nil)
	l := GetLogger()
	require.NotNil(t, l)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.Same(t, l, GetLogger())
}
