package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nftlend-backend/internal/config"
	"nftlend-backend/internal/infrastructure/db"
	"nftlend-backend/internal/logging"
)

const service = "nftlend-api"

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           service,
		Short:         "NFT-collateralized lending API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Setup(service, cfg.AppEnv, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Migrate the schema and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN(), db.LogLevel(cfg.LogLevel))
			if err != nil {
				return err
			}
			return db.Migrate(gdb)
		},
	}

	root.AddCommand(serveCmd, migrateCmd)
	return root
}
