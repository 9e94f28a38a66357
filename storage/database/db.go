package database

import (
	"embed"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/tqwops/fieldops/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to the MySQL domain database.
func Open(conf *core.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
		conf.Database.User,
		conf.Database.Password,
		conf.Database.Address(),
		conf.Database.Name,
	)
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// Ping waits for the database to be ready. Waits 100ms longer between each attempt.
func Ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func Migrate(db *sqlx.DB) error {
	return RunMigration("up", db)
}

// RunMigration runs an arbitrary goose command against the embedded migrations.
func RunMigration(command string, db *sqlx.DB, args ...string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("mysql"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.Run(command, db.DB, "migrations", args...); err != nil {
		return errors.Wrapf(err, "goose %s", command)
	}
	return nil
}
