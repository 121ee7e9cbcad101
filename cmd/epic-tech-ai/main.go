package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/app"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

var configPath string

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	rootCmd := &cobra.Command{
		Use:           "epic-tech-ai",
		Short:         "Chat assistant backend with web and Telegram front ends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to the YAML config")
	rootCmd.AddCommand(newServeCmd(), newExportCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Fatal("command failed", "error", err)
	}
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	return app.New(ctx, cfg)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
}

func newExportCmd() *cobra.Command {
	var sessionKey, userID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print a stored conversation as plain text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionKey == "" && userID == "" {
				return fmt.Errorf("either --session or --user is required")
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.Chat.Open(cmd.Context(), model.SessionRef{Key: sessionKey, UserID: userID})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), session.Export())
			return err
		},
	}
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "anonymous session key")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "identified user id")
	return cmd
}
