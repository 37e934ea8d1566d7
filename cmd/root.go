package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tracker-service",
	Short: "Helpdesk ticket tracker: CRUD API plus asynchronous classification",
	RunE:  runAPI,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(bulkClassifyCmd)
	rootCmd.AddCommand(seedCmd)
}
