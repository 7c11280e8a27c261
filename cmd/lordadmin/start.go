package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/onioktairawan/lordadmin/internal/bot"
	"github.com/onioktairawan/lordadmin/internal/core"
	"github.com/onioktairawan/lordadmin/internal/journal"
	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start lordadmin main process",
		Long:  "Start lordadmin main process, connect the enabled bots and moderate their chats",
		Run: func(cmd *cobra.Command, args []string) {
			// Load configuration
			config, err := core.LoadConfig(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			fmt.Printf("Starting lordadmin with config: %s\n", configFile)
			fmt.Printf("Storage driver: %s\n", config.Storage.Driver)
			fmt.Printf("Kick mode: %s\n", config.Moderation.KickMode)

			if err := initLogger(config); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   config.Logging.Level,
				"log_file":    config.Logging.File,
			}).Info("logger-initialized")

			j, err := journal.Open(config.Storage.Driver, config.Storage.Path)
			if err != nil {
				log.Fatalf("Failed to open journal: %v", err)
			}

			// Create engine
			engine := core.NewEngine(config, j)
			for _, adapter := range buildAdapters(config, engine) {
				engine.RegisterBotAdapter(adapter)
				log.Printf("Registered %s bot adapter", adapter.Name())
			}

			// Setup signal handling for graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Start engine in a goroutine
			engineErrChan := make(chan error, 1)
			go func() {
				fmt.Println("\nlordadmin engine starting...")
				fmt.Println("Press Ctrl+C to stop")
				engineErrChan <- engine.Run(ctx)
			}()

			// Wait for signal or engine error
			select {
			case <-ctx.Done():
				log.Printf("Received shutdown signal, shutting down gracefully...")
			case err := <-engineErrChan:
				if err != nil {
					log.Printf("Engine error: %v", err)
				}
			}

			if err := engine.Stop(); err != nil {
				log.Printf("Error during shutdown: %v", err)
			}
			log.Println("lordadmin stopped")
		},
	}
)

func initLogger(config *core.Config) error {
	return logger.InitLogger(logger.Config{
		Level:        config.Logging.Level,
		File:         config.Logging.File,
		MaxSize:      config.Logging.MaxSize,
		MaxBackups:   config.Logging.MaxBackups,
		MaxAge:       config.Logging.MaxAge,
		Compress:     config.Logging.Compress,
		EnableStdout: config.Logging.EnableStdout,
	})
}

// buildAdapters creates one adapter per enabled bot
func buildAdapters(config *core.Config, engine *core.Engine) []bot.Platform {
	var adapters []bot.Platform
	for _, botType := range config.EnabledBots() {
		botConfig, err := config.GetBotConfig(botType)
		if err != nil {
			log.Printf("Warning: skipping bot '%s': %v", botType, err)
			continue
		}
		switch botType {
		case "telegram":
			adapters = append(adapters, bot.NewTelegramBot(botConfig.Token, engine.IdentityStore(botType)))
		case "discord":
			adapters = append(adapters, bot.NewDiscordBot(botConfig.Token, botConfig.ChannelID))
		default:
			log.Printf("Warning: Bot type '%s' not implemented yet", botType)
		}
	}
	return adapters
}

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
}
