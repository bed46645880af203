package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "journeyd",
	Short: "journeyd runs and inspects customer journey workflows",
	Long: `journeyd hosts the journey orchestration engine: it loads journey
templates, drives journeys through their steps, hands work off to external
subsystems, and serves the operations REST API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("templates", "./templates", "Directory containing journey template YAML files")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}
