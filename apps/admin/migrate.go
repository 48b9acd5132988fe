package main

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/plp/edmodule/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(context.Background(), args[0], cli.db, database.MigrationsDir, args[1:]...)
}
