package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/onioktairawan/lordadmin/internal/core"
	"github.com/onioktairawan/lordadmin/internal/journal"
	"github.com/spf13/cobra"
)

var (
	statusConfigFile string
	statusJSON       bool
)

// StatusOutput summarizes the persisted moderation state
type StatusOutput struct {
	Version   string           `json:"version"`
	Storage   string           `json:"storage"`
	Entries   int              `json:"entries"`
	Platforms []PlatformStatus `json:"platforms"`
}

// PlatformStatus is the state of one platform after journal replay
type PlatformStatus struct {
	Platform   string         `json:"platform"`
	Identities int            `json:"identities"`
	Bans       map[string]int `json:"bans"`  // chat -> active bans
	Muted      map[string]int `json:"muted"` // chat -> restricted members
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lordadmin status",
	Long:  "Replay the configured journal and display known members, active bans and muted members per chat",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := core.LoadConfig(statusConfigFile)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed to load config: %v\n", err)
			os.Exit(1)
		}

		status, err := collectStatus(context.Background(), config)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed to read journal: %v\n", err)
			os.Exit(1)
		}
		outputStatus(cmd.OutOrStdout(), status, statusJSON)
	},
}

// collectStatus replays the journal into a detached engine. No adapter is
// started, so nothing is sent to any platform.
func collectStatus(ctx context.Context, config *core.Config) (StatusOutput, error) {
	status := StatusOutput{Version: Version, Storage: config.Storage.Driver}

	j, err := journal.Open(config.Storage.Driver, config.Storage.Path)
	if err != nil {
		return status, err
	}

	type member struct{ chat, user string }
	chats := make(map[string]map[string]struct{}) // platform -> chats
	muted := make(map[string]map[member]struct{}) // platform -> ever restricted
	err = j.Replay(ctx, func(e journal.Entry) error {
		status.Entries++
		if chats[e.Platform] == nil {
			chats[e.Platform] = make(map[string]struct{})
			muted[e.Platform] = make(map[member]struct{})
		}
		if e.ChatID != "" {
			chats[e.Platform][e.ChatID] = struct{}{}
		}
		if e.Kind == journal.KindRestrict {
			muted[e.Platform][member{e.ChatID, e.UserID}] = struct{}{}
		}
		return nil
	})
	if err != nil {
		_ = j.Close()
		return status, err
	}

	engine := core.NewEngine(config, j)
	defer engine.Stop()
	if err := engine.Replay(ctx); err != nil {
		return status, err
	}

	platforms := make([]string, 0, len(chats))
	for p := range chats {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	for _, p := range platforms {
		ps := PlatformStatus{
			Platform:   p,
			Identities: engine.IdentityStore(p).Len(),
			Bans:       make(map[string]int),
			Muted:      make(map[string]int),
		}
		state := engine.ModerationState(p)
		for chat := range chats[p] {
			if n := len(state.Bans(chat)); n > 0 {
				ps.Bans[chat] = n
			}
		}
		for m := range muted[p] {
			if state.IsRestricted(m.chat, m.user) {
				ps.Muted[m.chat]++
			}
		}
		status.Platforms = append(status.Platforms, ps)
	}
	return status, nil
}

func outputStatus(w io.Writer, status StatusOutput, jsonFormat bool) {
	if jsonFormat {
		output, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(w, string(output))
		return
	}

	fmt.Fprintln(w, "lordadmin status:")
	fmt.Fprintf(w, "  - Version: %s\n", status.Version)
	fmt.Fprintf(w, "  - Storage: %s (%d entries)\n", status.Storage, status.Entries)
	for _, p := range status.Platforms {
		fmt.Fprintf(w, "  - %s: %d known members\n", p.Platform, p.Identities)
		seen := make(map[string]struct{}, len(p.Bans)+len(p.Muted))
		for chat := range p.Bans {
			seen[chat] = struct{}{}
		}
		for chat := range p.Muted {
			seen[chat] = struct{}{}
		}
		chats := make([]string, 0, len(seen))
		for chat := range seen {
			chats = append(chats, chat)
		}
		sort.Strings(chats)
		for _, chat := range chats {
			fmt.Fprintf(w, "      %s: %d banned, %d muted\n", chat, p.Bans[chat], p.Muted[chat])
		}
	}
}

func init() {
	statusCmd.Flags().StringVarP(&statusConfigFile, "config", "c", "config.yaml", "Configuration file path")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}
