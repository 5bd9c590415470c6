package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/emotrack/backend/internal/config"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	"github.com/zhouzirui/emotrack/backend/internal/storage"
)

var (
	outputFormat string
	driver       string
	storagePath  string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Inspect and manage stored emotion tracking sessions",
	Long: `sessionctl reads the same session store the backend writes to.

Examples:
  sessionctl list --limit 10
  sessionctl show session_1772355600000_1a2b3c4d --detail
  sessionctl stats -o json
  sessionctl reset --yes`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.SetOutput(io.Discard)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Override STORAGE_DRIVER (sqlite, kv, file, memory)")
	rootCmd.PersistentFlags().StringVar(&storagePath, "path", "", "Override STORAGE_PATH")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(listCmd(), showCmd(), statsCmd(), deleteCmd(), resetCmd(), pullCmd())
}

// openStore loads configuration and opens the configured store.
func openStore() (*config.Config, tracking.Store, func() error, error) {
	_ = godotenv.Load()

	if driver != "" {
		os.Setenv("STORAGE_DRIVER", driver)
	}
	if storagePath != "" {
		os.Setenv("STORAGE_PATH", storagePath)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, closeFn, err := storage.Open(cfg.Storage, cfg.Sync)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return cfg, store, closeFn, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
