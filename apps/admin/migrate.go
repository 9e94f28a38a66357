package main

import (
	"github.com/tqwops/fieldops/storage/database"
)

var migrateRunFunc = database.RunMigration // mockable

func (cli *commandLine) migrate(args []string) error {
	extra := make([]string, 0)
	if len(args) > 1 {
		extra = append(extra, args[1:]...)
	}
	return migrateRunFunc(args[0], cli.db, extra...)
}
