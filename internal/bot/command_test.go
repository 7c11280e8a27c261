package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
		ok    bool
	}{
		{"bare command", "/ban", Command{Name: "ban"}, true},
		{"with mention", "/ban@LordAdminBot", Command{Name: "ban", Mention: "LordAdminBot"}, true},
		{"with args", "/unban @bob extra", Command{Name: "unban", Args: []string{"@bob", "extra"}}, true},
		{"mention and args", "/mute@other_bot 123", Command{Name: "mute", Mention: "other_bot", Args: []string{"123"}}, true},
		{"uppercase name is lowered", "/HELP", Command{Name: "help"}, true},
		{"surrounding whitespace", "  /rules  ", Command{Name: "rules"}, true},
		{"plain text", "hello there", Command{}, false},
		{"bare slash", "/", Command{}, false},
		{"slash with space", "/ ban", Command{Name: "ban"}, true},
		{"invalid characters", "/b-a-n", Command{}, false},
		{"path-like text", "/usr/bin", Command{}, false},
		{"empty", "", Command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCommand(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_RejectsOversizedInput(t *testing.T) {
	_, ok := ParseCommand("/ban " + strings.Repeat("x", 5000))
	assert.False(t, ok)

	_, ok = ParseCommand("/" + strings.Repeat("a", 33))
	assert.False(t, ok, "names longer than 32 characters are not commands")
}

func TestCommand_AddressedTo(t *testing.T) {
	assert.True(t, Command{Name: "ban"}.AddressedTo("LordAdminBot"))
	assert.True(t, Command{Name: "ban", Mention: "lordadminbot"}.AddressedTo("LordAdminBot"))
	assert.True(t, Command{Name: "ban", Mention: "LordAdminBot"}.AddressedTo("@LordAdminBot"))
	assert.False(t, Command{Name: "ban", Mention: "OtherBot"}.AddressedTo("LordAdminBot"))
	assert.False(t, Command{Name: "ban", Mention: "OtherBot"}.AddressedTo(""))
}

func TestMember_Label(t *testing.T) {
	assert.Equal(t, "@bob", Member{ID: "1", DisplayName: "Bob", Handle: "bob"}.Label())
	assert.Equal(t, "Bob", Member{ID: "1", DisplayName: "Bob"}.Label())
	assert.Equal(t, "1", Member{ID: "1"}.Label())
}

func TestEvent_ReplyChannel(t *testing.T) {
	assert.Equal(t, "-100", Event{ChatID: "-100"}.ReplyChannel())
	assert.Equal(t, "chan", Event{ChatID: "guild", Channel: "chan"}.ReplyChannel())
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abc", 10))
	assert.Equal(t, "ab", truncateText("abcdef", 2))
	// "é" is two bytes; cutting inside it must back off to the rune start
	assert.Equal(t, "a", truncateText("aé", 2))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "1234567***wxyz", maskSecret("1234567:ABCDEFwxyz"))
}

func BenchmarkParseCommand(b *testing.B) {
	inputs := []string{
		"/ban",
		"/unban@LordAdminBot @bob",
		"just some chatter in the group",
		"/mute 123456789",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, in := range inputs {
			ParseCommand(in)
		}
	}
}
