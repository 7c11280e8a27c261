package core

import (
	"fmt"
	"strings"

	"github.com/onioktairawan/lordadmin/internal/identity"
	"github.com/onioktairawan/lordadmin/internal/notify"
)

// Messages holds every user-visible text. Format verbs are documented per field.
type Messages struct {
	Welcome string // %s: member name
	Start   string
	Help    string
	Rules   string
	Menu    string
	Info    string // %s: transport status

	NotAuthorized  string
	Unknown        string
	TargetUsage    string // %s: command name
	UnbanUsage     string
	TargetNotFound string
	UnbanNotFound  string // %s: query
	ActionFailed   string // %s: command name
	Failed         string

	Warned          string // %s: target label, %d: warning count
	Muted           string // %s: target label
	Unmuted         string // %s: target label
	Kicked          string // %s: target label
	KickUnbanFailed string // %s: target label
	Banned          string // %s: target label
	Unbanned        string // %s: ban label

	ReportSent    string
	ReportAudit   string // %s: reporter, %s: chat, %s: details
	Audit         string // %s: actor, %s: action, %s: target, %s: chat
	NoIdentities  string
	IdentityTitle string // %d: number of members
}

// DefaultMessages returns the built-in English texts
func DefaultMessages() Messages {
	return Messages{
		Welcome: "Welcome to the group, %s! Please read the rules and help keep this place friendly for everyone.",
		Start:   "Hi! I manage this group. Type /help to see the list of commands.",
		Help: "Commands:\n" +
			"/start - Start the bot\n" +
			"/help - Show this help\n" +
			"/rules - Show the group rules\n" +
			"/menu - Show the menu\n" +
			"/report - Report a problem to the admins\n" +
			"/info - Show the bot status\n" +
			"Admins only:\n" +
			"/warn - Warn a member\n" +
			"/mute - Mute a member\n" +
			"/unmute - Unmute a member\n" +
			"/kick - Remove a member\n" +
			"/ban - Ban a member permanently\n" +
			"/unban <@handle|id> - Lift a ban\n" +
			"/sg - List known members and their name history\n" +
			"Reply to a member's message, or pass @handle or a user ID.",
		Rules: "Group rules:\n1. Respect other members.\n2. No spam.\n3. Follow the admins' directions.",
		Menu:  "Menu:\n/rules - Group rules\n/report - Contact the admins\n/help - All commands",
		Info:  "Bot status: %s",

		NotAuthorized:  "Only admins can use this command.",
		Unknown:        "Unknown command. Type /help for the list of available commands.",
		TargetUsage:    "Reply to the member's message, or use /%s @handle or /%s <user id>.",
		UnbanUsage:     "Give the username or user ID of the member to unban.",
		TargetNotFound: "Could not find that member in this chat.",
		UnbanNotFound:  "No banned member matches %s.",
		ActionFailed:   "Could not complete /%s, the platform refused the request. Nothing was changed.",
		Failed:         "Something went wrong, please try again.",

		Warned:          "%s has been warned (%d so far).",
		Muted:           "%s has been muted.",
		Unmuted:         "%s has been unmuted.",
		Kicked:          "%s has been removed from the group.",
		KickUnbanFailed: "%s has been removed, but lifting the ban failed. They stay banned until an admin uses /unban.",
		Banned:          "%s has been permanently banned from the group.",
		Unbanned:        "%s has been unbanned.",

		ReportSent:    "Your report has been sent to the admins.",
		ReportAudit:   "New report from %s in %s:\n%s",
		Audit:         "Admin %s performed %s on %s in %s.",
		NoIdentities:  "No members recorded yet.",
		IdentityTitle: "Known members (%d):",
	}
}

// withOverrides applies the configured texts on top of m
func (m Messages) withOverrides(cfg MessagesConfig) Messages {
	if cfg.Welcome != "" {
		m.Welcome = cfg.Welcome
	}
	if cfg.Rules != "" {
		m.Rules = cfg.Rules
	}
	if cfg.Menu != "" {
		m.Menu = cfg.Menu
	}
	return m
}

func (m Messages) welcome(name string) string {
	if !strings.Contains(m.Welcome, "%s") {
		return m.Welcome
	}
	return fmt.Sprintf(m.Welcome, name)
}

func (m Messages) targetUsage(command string) string {
	return fmt.Sprintf(m.TargetUsage, command, command)
}

func (m Messages) audit(a notify.Audit) string {
	return fmt.Sprintf(m.Audit, a.Actor, a.Action, a.Target, a.ChatID)
}

func (m Messages) report(reporter, chatID, target string, args []string) string {
	var details []string
	if target != "" {
		details = append(details, "Reported member: "+target)
	}
	if len(args) > 0 {
		details = append(details, "Message: "+strings.Join(args, " "))
	}
	if len(details) == 0 {
		details = append(details, "A member reported a problem in the group.")
	}
	return fmt.Sprintf(m.ReportAudit, reporter, chatID, strings.Join(details, "\n"))
}

// identities renders the identity store dump for /sg
func (m Messages) identities(all []identity.Identity) string {
	if len(all) == 0 {
		return m.NoIdentities
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, m.IdentityTitle, len(all))
	for _, id := range all {
		sb.WriteString("\n")
		sb.WriteString(id.ID)
		sb.WriteString(": ")
		sb.WriteString(id.DisplayName)
		if id.Handle != "" {
			sb.WriteString(" (@" + id.Handle + ")")
		}
		for _, h := range id.History {
			prev := h.Previous
			if prev == "" {
				prev = "-"
			}
			fmt.Fprintf(&sb, "\n  %s was %s", h.Field, prev)
		}
	}
	return sb.String()
}
