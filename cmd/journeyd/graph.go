package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitel/journey/internal/presentation/graph"
	"github.com/orbitel/journey/pkg/templates"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Export a template's flow as a Mermaid diagram",
	Long:  `Loads a journey template and outputs a Mermaid flowchart (graph TD) of its steps, conditions and subsystem handoffs.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tpl, err := templates.LoadFile(args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Print(graph.GenerateMermaid(tpl, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
