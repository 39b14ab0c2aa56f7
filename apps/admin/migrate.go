package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/hazira/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run database migrations",
		Long: `Run a goose command against the embedded migrations:
  up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return errHelp
			}
			db, err := cli.openDB()
			if err != nil {
				return err
			}
			return gooseRunFunc(db, args[0], args[1:]...)
		},
	}
}
