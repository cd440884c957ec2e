package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "classroom-quiz",
		Short:        "Classroom quiz authoring and live session service",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envOr("PORT", "8080"), "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "config/config.yaml"), "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewImportBankCmd(&configPath))
	return cmd
}
