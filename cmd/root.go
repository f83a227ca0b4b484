package cmd

import (
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/chative-customer-assistant/pkg/config"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "chative",
		Short:         "Customer-service chat assistant",
		Long:          "chative serves a chat assistant that registers customers in the CRM through a tool worker subprocess.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configx.SetEnvFile(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to an env file (defaults to ./.env when present)")

	rootCmd.AddCommand(
		newServeCmd(&envFile),
		newWorkerCmd(),
		newToolsCmd(&envFile),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(Version + "\n"))
			return err
		},
	}
}
