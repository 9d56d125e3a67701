package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/rally/internal/adapters/repository"
	app "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/config"
	"github.com/okian/rally/pkg/logger"
)

// cfg is populated by the root command before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rally",
	Short: "Community reputation engine",
	Long: `rally weighs community interactions, keeps per-user personality
profiles and memory fragments, and ranks members on a leaderboard.
Settings come from defaults, an optional YAML file and RALLY_* env vars.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (overrides RALLY_CONFIG)")
	rootCmd.PersistentFlags().String("store", "", "Store backend: sqlite or memory")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and initializes logging.
func setup(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv(config.EnvConfigFile, path); err != nil {
			return err
		}
	}

	loaded, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		loaded.Store = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		loaded.DBPath = v
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.WithFormat(loaded.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	// Fall back to info on invalid input.
	if err := logger.SetLevelString(loaded.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", loaded.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	cfg = loaded
	return nil
}

// openStore opens the configured durable store.
func openStore(ctx context.Context, c *config.Config) (repository.Store, error) {
	switch c.Store {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	default:
		st, err := repository.OpenSQLite(ctx, c.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", c.DBPath, err)
		}
		return st, nil
	}
}

// newService opens the store and builds a service over it. The returned
// closer releases the store and must run after the service is stopped.
func newService(ctx context.Context, c *config.Config) (*app.Service, func(), error) {
	store, err := openStore(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	svc := app.New(
		app.WithConfig(c),
		app.WithStore(store),
		app.WithLogger(logger.Named("service")),
	)
	closer := func() {
		if err := store.Close(); err != nil {
			logger.Get().Error(context.Background(), "closing store failed", logger.Error(err))
		}
	}
	return svc, closer, nil
}
