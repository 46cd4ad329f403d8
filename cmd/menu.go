package main

import (
	"github.com/spf13/cobra"

	"github.com/forest-guardian/field-indices-cli/internal/ui"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive menu",
	Run: func(cmd *cobra.Command, _ []string) {
		printBanner()
		ui.ShowMenu(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}
