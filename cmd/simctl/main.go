package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "simctl",
		Short: "Scenario simulator - temporal engine for a fictional company",
		Long: `simctl drives a simulated company calendar. It moves a virtual clock
across timeline branches, fires scheduled narrative events when their date
is reached and produces day packets of mail, chat and meeting notes.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
