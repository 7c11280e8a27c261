package bot

import (
	"strings"

	"github.com/onioktairawan/lordadmin/pkg/constants"
)

// CommandPrefix marks a message as a command
const CommandPrefix = "/"

// ParseCommand parses "/name[@bot] arg1 arg2" into a Command.
//
// The name is lowercased and the mention keeps its original case. Inputs
// longer than MaxCommandInputLength, bare "/" and names with characters
// outside [a-z0-9_] are not commands.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if len(text) > constants.MaxCommandInputLength || !strings.HasPrefix(text, CommandPrefix) {
		return Command{}, false
	}

	fields := strings.Fields(text[len(CommandPrefix):])
	if len(fields) == 0 {
		return Command{}, false
	}

	head := fields[0]
	name, mention := head, ""
	if i := strings.IndexByte(head, '@'); i >= 0 {
		name, mention = head[:i], head[i+1:]
	}
	name = strings.ToLower(name)
	if !isCommandName(name) {
		return Command{}, false
	}

	args := fields[1:]
	if len(args) == 0 {
		args = nil
	}
	return Command{Name: name, Mention: mention, Args: args}, true
}

func isCommandName(name string) bool {
	if name == "" || len(name) > constants.MaxCommandNameLength {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

// AddressedTo reports whether the command may be handled by the bot named
// username. Unaddressed commands are for everyone; mentions compare
// case-insensitively because Telegram usernames are case-insensitive.
func (c Command) AddressedTo(username string) bool {
	if c.Mention == "" {
		return true
	}
	return strings.EqualFold(c.Mention, strings.TrimPrefix(username, "@"))
}
