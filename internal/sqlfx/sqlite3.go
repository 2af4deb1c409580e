package sqlfx

import (
	"context"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"github.com/yurykabanov/securevault/internal/configfx"
	"github.com/yurykabanov/securevault/pkg/storage"
	"github.com/yurykabanov/securevault/pkg/util"
)

const databaseFile = "securevault.db"

type SqliteConfig struct {
	Path         string
	DSN          string
	DatabaseName string
}

func SqliteConfigProvider(settings *configfx.Settings) (*SqliteConfig, error) {
	path := filepath.Join(settings.BackupBase, databaseFile)

	config := &SqliteConfig{
		Path:         path,
		DSN:          path + "?_busy_timeout=5000",
		DatabaseName: "securevault",
	}

	return config, nil
}

func OpenSqliteDatabase(config *SqliteConfig, logger *logrus.Logger) (*sqlx.DB, error) {
	logger.WithField("dsn", config.DSN).Debug("Connecting to DB with DSN")

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, errors.Wrap(err, "Unable to create DB directory")
	}

	db, err := sqlx.Open("sqlite3", config.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to connect to DB")
	}

	db.MapperFunc(util.CamelToSnakeCase)

	if err := migrateDatabase(db, config.DatabaseName); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func migrateDatabase(db *sqlx.DB, name string) error {
	source, err := iofs.New(storage.Migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "Unable to load migrations")
	}

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "Unable to create instance of migrate")
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return errors.Wrap(err, "Unable to create instance of migrate")
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "Unable to migrate DB")
	}

	return nil
}

func CloseSqliteDatabase(lc fx.Lifecycle, db *sqlx.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
}
