package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/varserve/seed-fetcher/internal/state"
)

var resetCmd = &cobra.Command{
	Use:   "reset-attempt",
	Short: "Clear the local fetch-attempt flag",
	Long: `Clear the local fetch-attempt flag so the next invocation fetches again.
Intended for testing; normal operation never resets the flag. The native
consumer's flag is not touched.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
}

func runReset(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := loadConfigOptional(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	lock, err := acquireInstanceLock(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Unlock()
	}()

	if err := state.NewStore(cfg.Storage.DataDir).Reset(cmd.Context()); err != nil {
		return err
	}

	slog.Info("Cleared local fetch-attempt flag", "data_dir", cfg.Storage.DataDir)
	return nil
}
