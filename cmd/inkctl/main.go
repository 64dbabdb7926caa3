// Command inkctl is the operator CLI: derive tag identities, sign test
// webhooks, connect a shop and run one-off maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "inkctl",
		Short:         "Operate the ink verified-delivery integration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(deriveCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(shopCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(etlCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
