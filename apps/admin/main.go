package main

import (
	"log"
	"os"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/user"
	"github.com/tqwops/fieldops/storage/database"
	sqlxrepos "github.com/tqwops/fieldops/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))

	usrRepo := sqlxrepos.NewUserRepository(db)

	// start CLI
	cli := commandLine{
		db:      db,
		conf:    conf,
		usrRepo: usrRepo,
		usrSvc:  user.NewService(usrRepo, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
