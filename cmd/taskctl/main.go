package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskpulse-backend/internal/auth"
	"taskpulse-backend/internal/config"
	"taskpulse-backend/internal/db"
)

var rootCmd = &cobra.Command{
	Use:          "taskctl",
	Short:        "Operational commands for the task backend",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := connString(cmd)
		if err != nil {
			return err
		}
		if err := db.MigrateUp(connStr); err != nil {
			return err
		}
		fmt.Println("Migrations applied successfully")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := connString(cmd)
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetInt("steps")
		if err := db.MigrateDown(connStr, steps); err != nil {
			return err
		}
		fmt.Printf("Rolled back %d migration(s)\n", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := connString(cmd)
		if err != nil {
			return err
		}
		v, dirty, err := db.Version(connStr)
		if err != nil {
			return err
		}
		if dirty {
			fmt.Printf("%d (dirty)\n", v)
			return nil
		}
		fmt.Println(v)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a service token for the enrichment callback",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = cfg.EnrichmentSecret
		}
		if secret == "" {
			return fmt.Errorf("--secret or ENRICHMENT_SECRET required")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tok, err := auth.GenerateToken([]byte(secret), auth.SubjectEnrichment, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

// connString prefers --db and falls back to the server configuration.
func connString(cmd *cobra.Command) (string, error) {
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		return dsn, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.ConnString()
}

func main() {
	migrateCmd.PersistentFlags().String("db", "", "Database connection string (optional if DATABASE_URL or DB_* env vars are set)")
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	tokenCmd.Flags().String("secret", "", "Signing secret (defaults to ENRICHMENT_SECRET)")
	tokenCmd.Flags().Duration("ttl", 365*24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(migrateCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
