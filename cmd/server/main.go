package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swanstudios/studiochat-server/internal/app"
	"github.com/swanstudios/studiochat-server/internal/config"
	"github.com/swanstudios/studiochat-server/internal/log"
)

func main() {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "studiochat-server",
		Short: "Real-time presence and messaging server for the studio platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New(logLevel, "console")

			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				return fmt.Errorf("load config (%s): %w", path, err)
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cfg.JWTSecret == "" {
				cfg.JWTSecret = os.Getenv("STUDIOCHAT_JWT_SECRET")
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt secret is required (config jwt_secret or STUDIOCHAT_JWT_SECRET)")
			}

			logger := log.New(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
