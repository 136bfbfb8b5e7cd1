// Command identityctl runs the identity HTTP service and its maintenance
// tasks.
package main

import (
	"fmt"
	"os"

	"github.com/goliatone/go-identity/config"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "identityctl"
)

type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Identity and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Optional dotenv file")

	cmd.AddCommand(
		serveCmd(flags),
		migrateCmd(flags),
		tokenCmd(flags),
		userCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
