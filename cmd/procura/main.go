package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "procura",
		Short: "Procura resource engine tooling",
		Long: `Procura manages dynamic, per-tenant resource schemas for procurement
documents (orders, bills, purchases, jobs) and master data (vendors,
customers, items). This tool runs migrations, reconciles tenant schemas
against the system templates, and exports schema validation documents.`,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(schemaCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
