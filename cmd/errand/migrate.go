package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/errand/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [db-path]",
	Short: "Apply pending database migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "errand.db"
		if len(args) == 1 {
			path = args[0]
		}
		db, err := database.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := database.Version(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", path, v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
