package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Perform the one-time seed fetch and exit",
	Long: `Perform the one-time seed fetch and exit. If an attempt has already been
recorded (locally or by the native consumer), the command is a no-op.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	fetchCmd.Flags().String("restrict", "", "Restrict mode passed to the seed server (overrides config)")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := loadConfigOptional(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	restrictMode, err := cmd.Flags().GetString("restrict")
	if err != nil {
		return err
	}
	if restrictMode == "" {
		restrictMode = cfg.Seed.RestrictMode
	}

	lock, err := acquireInstanceLock(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Unlock()
	}()

	comps := buildComponents(cfg, nil)

	summary := comps.fetcher.FetchSeedOnce(cmd.Context(), restrictMode)
	if !summary.Performed {
		slog.Info("Seed fetch already attempted, nothing to do")
		return nil
	}

	slog.Info("Seed fetch finished", "result_code", summary.ResultCode)
	return nil
}
