package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/faceprep/internal/config"
	"github.com/andresmejia3/faceprep/internal/store"
	"github.com/andresmejia3/faceprep/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultDBURL is used by commands that cannot work without the ledger.
const defaultDBURL = "postgres://localhost:5432/faceprep"

// Commands annotated with needsDB always connect to the ledger.
const needsDB = "needs-db"

var (
	// DB is the optional run ledger shared by subcommands
	DB *store.Store
	// settings is resolved from flags, environment and config file before every command
	settings *config.Settings
	logger   = slog.New(slog.NewTextHandler(os.Stderr, nil))

	v       = viper.New()
	cfgFile string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "faceprep",
	Short:         "Frontal face selection, normalization and batching for face datasets",
	Version:       Version, // This enables the --version flag
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		s, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		level, err := config.ParseLevel(s.LogLevel)
		if err != nil {
			return err
		}
		settings = s
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		_, required := cmd.Annotations[needsDB]
		return openDB(cmd.Context(), required)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// openDB connects the ledger when one is configured. With required set it
// falls back to a local default instead of running without one.
func openDB(ctx context.Context, required bool) error {
	if DB != nil {
		return nil
	}
	url := settings.DatabaseURL()
	if url == "" {
		if !required {
			return nil
		}
		url = defaultDBURL
	}

	var err error
	DB, err = store.New(ctx, url)
	if err != nil {
		DB = nil
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		utils.Die("Command failed", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().String("db", "", "PostgreSQL connection string for the run ledger (default: POSTGRES_* env vars, otherwise no ledger)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}
