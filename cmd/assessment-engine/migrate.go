package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/assessment-engine/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, _ := cmd.Flags().GetString("dsn")
		dir, _ := cmd.Flags().GetString("dir")
		if dsn == "" {
			return fmt.Errorf("a database DSN is required (--dsn or DATABASE_DSN)")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		applied, err := storage.MigrateFromDSN(ctx, dsn, dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			fmt.Fprintln(out, "database is up to date")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintf(out, "applied %s\n", name)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL connection string")
	migrateCmd.Flags().String("dir", envOr("DATABASE_MIGRATIONS_DIR", "./migrations"), "Directory containing *.sql migrations")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
