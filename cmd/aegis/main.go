package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "aegis",
	Short:   "Real-time compliance monitoring for live conversations",
	Version: version,
	Long: `aegis listens to live conversation audio, transcribes it in short
chunks, and checks each utterance against an indexed set of compliance
documents using two local models: a fast worker analyst and a guardian
reviewer that vets every alert before it is raised.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}
