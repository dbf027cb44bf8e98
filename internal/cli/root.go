package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koding/wsrelay"
	"github.com/koding/wsrelay/internal/config"
)

var (
	cfg          *config.Config
	logLevelFlag int
	logFileFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "wsrelay",
	Short: "WebSocket message relay",
	Long:  `wsrelay - relays WebSocket messages between clients and a target server`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		cfg = config.Load()

		// Flags take precedence over the environment
		if cmd.Flags().Changed("v") {
			cfg.LogLevel = logLevelFlag
		}
		if logFileFlag != "" {
			cfg.LogFile = logFileFlag
		}

		return wsrelay.Init(wsrelay.InitOptions{
			LogLevel:      wsrelay.LogLevel(cfg.LogLevel),
			DebugFilePath: cfg.LogFile,
		})
	},
}

func init() {
	// Disable default completion and help commands
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SilenceUsage = true

	// Add persistent flags
	rootCmd.PersistentFlags().IntVar(&logLevelFlag, "v", int(wsrelay.LogLevelStandard), "Log verbosity (1-6)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Write logs to this file instead of stderr")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
