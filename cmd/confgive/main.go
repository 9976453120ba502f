package main

import (
	"os"

	"github.com/spf13/cobra"

	importercmd "confgive/internal/interfaces/cli/importer"
	"confgive/internal/interfaces/cli/migrate"
	"confgive/internal/interfaces/cli/server"
	"confgive/internal/interfaces/cli/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "confgive",
		Short: "Donation charge and settlement service",
		Long:  `confgive accepts donation charges, authorizes them against TapPay, and durably records the outcome through an asynchronous settlement pipeline.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		worker.NewCommand(),
		migrate.NewCommand(),
		importercmd.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
