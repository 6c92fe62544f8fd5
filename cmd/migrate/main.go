// Command migrate applies the embedded schema migrations to MySQL.
//
//	migrate            apply every pending migration
//	migrate down N     roll back N migrations
//	migrate force V    mark version V as applied after a failed run
package main

import (
	"database/sql"
	"errors"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/iliyamo/pitch-booking/internal/database"
	"github.com/iliyamo/pitch-booking/internal/logging"
	appmigrations "github.com/iliyamo/pitch-booking/migrations"
)

type dbEnv struct {
	Env  string `envconfig:"APP_ENV" default:"dev"`
	User string `envconfig:"DB_USER" required:"true"`
	Pass string `envconfig:"DB_PASS"`
	Host string `envconfig:"DB_HOST" required:"true"`
	Port string `envconfig:"DB_PORT" default:"3306"`
	Name string `envconfig:"DB_NAME" required:"true"`
}

func main() {
	if os.Getenv("APP_ENV") != "prod" {
		_ = godotenv.Load()
	}
	var cfg dbEnv
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.Env, "info")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := sql.Open("mysql", database.DSN(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name))
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		log.Fatal("ping db", zap.Error(err))
	}

	dbDriver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		log.Fatal("db driver", zap.Error(err))
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		log.Fatal("source driver", zap.Error(err))
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "mysql", dbDriver)
	if err != nil {
		log.Fatal("create migrator", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	if len(os.Args) >= 3 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal("invalid number", zap.String("arg", os.Args[2]), zap.Error(err))
		}
		switch os.Args[1] {
		case "force":
			if err := m.Force(n); err != nil {
				log.Fatal("force version", zap.Error(err))
			}
			log.Info("forced version", zap.Int("version", n))
			return
		case "down":
			if err := m.Steps(-n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				log.Fatal("migrate down", zap.Error(err))
			}
			log.Info("rolled back", zap.Int("steps", n))
			return
		default:
			log.Fatal("unknown command", zap.String("cmd", os.Args[1]))
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("migrate up", zap.Error(err))
	}
	log.Info("migrations complete")
}
