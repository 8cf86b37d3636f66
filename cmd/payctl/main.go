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
		Use:           "payctl",
		Short:         "payctl - operator actions for the payment orchestrator",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(reconcileCmd())
	root.AddCommand(subscriptionsCmd())
	root.AddCommand(webhooksCmd())
	root.AddCommand(idempotencyCmd())

	return root
}
