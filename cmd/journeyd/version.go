package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbitel/journey"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of journeyd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("journeyd version %s\n", journey.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
