package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/onioktairawan/lordadmin/internal/core"
	"github.com/onioktairawan/lordadmin/internal/journal"
	"github.com/spf13/cobra"
)

var (
	validateConfigFile string
	validateShow       bool
	validateJSON       bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config"`
	Bots     int      `json:"bots"`
	Storage  string   `json:"storage,omitempty"`
	KickMode string   `json:"kick_mode,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate lordadmin configuration file",
	Long: `Validate the lordadmin configuration file without starting the service.

This command checks:
  - YAML syntax
  - Bot credentials
  - Moderation durations and kick mode
  - Storage driver and path

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	Run: func(cmd *cobra.Command, args []string) {
		configFile := validateConfigFile
		if configFile == "" {
			configFile = findConfigFile()
		}

		if configFile == "" {
			fmt.Println("No configuration file found")
			fmt.Println("\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range defaultConfigLocations() {
				fmt.Printf("  - %s\n", loc)
			}
			os.Exit(1)
		}

		if !runValidate(cmd.OutOrStdout(), configFile, validateShow, validateJSON) {
			os.Exit(1)
		}
	},
}

func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/lordadmin/config.yaml"),
		"/etc/lordadmin/config.yaml",
	}
}

// findConfigFile returns the first default location that exists
func findConfigFile() string {
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// runValidate loads configFile, writes the result to w and reports whether it is valid
func runValidate(w io.Writer, configFile string, show, jsonFormat bool) bool {
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		outputValidationResult(w, ValidationResult{
			Valid:  false,
			Config: configFile,
			Errors: []string{err.Error()},
		}, jsonFormat)
		return false
	}

	result := ValidationResult{
		Valid:    true,
		Config:   configFile,
		Bots:     len(cfg.EnabledBots()),
		Storage:  cfg.Storage.Driver,
		KickMode: cfg.Moderation.KickMode,
		Warnings: validateConfigDetails(cfg),
	}

	if show && !jsonFormat {
		fmt.Fprintf(w, "Configuration loaded: %s\n\n", configFile)
		fmt.Fprintf(w, "Bots (%d):\n", len(cfg.Bots))
		for _, name := range []string{"telegram", "discord"} {
			b, ok := cfg.Bots[name]
			if !ok {
				continue
			}
			status := "disabled"
			if b.Enabled {
				status = "enabled"
			}
			fmt.Fprintf(w, "  - %s: %s\n", name, status)
		}
		fmt.Fprintf(w, "\nModeration:\n")
		fmt.Fprintf(w, "  - admin_cache_ttl: %s\n", cfg.Moderation.AdminCacheTTLDuration())
		fmt.Fprintf(w, "  - collaborator_timeout: %s\n", cfg.Moderation.CollaboratorTimeoutDuration())
		fmt.Fprintf(w, "  - kick_mode: %s\n", cfg.Moderation.KickMode)
		fmt.Fprintf(w, "  - notify: %v/s, burst %d\n", cfg.Moderation.NotifyRate, cfg.Moderation.NotifyBurst)
		fmt.Fprintf(w, "\nStorage: %s %s\n\n", cfg.Storage.Driver, cfg.Storage.Path)
	}

	outputValidationResult(w, result, jsonFormat)
	return result.Valid
}

func outputValidationResult(w io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(w, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(w, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(w, "Configuration is valid")
		fmt.Fprintf(w, "  - Config: %s\n", result.Config)
		fmt.Fprintf(w, "  - Bots enabled: %d\n", result.Bots)
		fmt.Fprintf(w, "  - Storage: %s\n", result.Storage)
		fmt.Fprintf(w, "  - Kick mode: %s\n", result.KickMode)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, "\nWarnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(w, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(w, "Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", errMsg)
		}
	}
}

// validateConfigDetails reports settings that load fine but are likely mistakes
func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	if cfg.Storage.Driver == journal.DriverMemory {
		warnings = append(warnings, "Storage driver is memory - bans and identities are lost on restart")
	}
	if b, ok := cfg.Bots["discord"]; ok && b.Enabled && b.ChannelID == "" {
		warnings = append(warnings, "Discord channel_id is empty - welcome messages go to the guild system channel")
	}
	if cfg.Moderation.KickMode == core.KickModePermanent {
		warnings = append(warnings, "kick_mode is permanent - /kick members cannot rejoin until /unban")
	}

	return warnings
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show full configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
