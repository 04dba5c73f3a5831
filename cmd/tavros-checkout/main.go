package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tavros-checkout",
		Short:         "Tavros checkout: orders, order numbers and Stripe payment sessions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(fingerprintCmd())

	return root
}
