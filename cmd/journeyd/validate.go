package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitel/journey/pkg/templates"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate journey template files",
	Long: `Checks template files for structural problems: duplicate or missing
step IDs, unknown step types and operators, and integration steps without a
target subsystem. With a file argument only that file is checked; otherwise
the whole templates directory is.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			tpl, err := templates.LoadFile(args[0])
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			fmt.Printf("%s: ok (%d steps)\n", tpl.ID, len(tpl.Steps))
			return
		}

		dir, _ := cmd.Flags().GetString("templates")
		loaded, err := templates.LoadDir(dir)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		for _, tpl := range loaded {
			fmt.Printf("%s: ok (%d steps)\n", tpl.ID, len(tpl.Steps))
		}
		fmt.Printf("%d templates valid\n", len(loaded))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
