package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lordadmin",
	Short: "lordadmin is a moderation bot for group chats",
	Long: `lordadmin is a moderation bot for Telegram groups and Discord guilds.

It welcomes new members, answers informational commands and lets chat
administrators warn, mute, kick and ban members. Every committed action
is reported privately to the chat's administrators.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
