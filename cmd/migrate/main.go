// Command migrate applies database migrations without starting the service.
//
// Usage:
//
//	migrate [up|down|status|version|redo]
//
// Postgres runs the embedded goose migrations; mysql and sqlite only
// support "up", which runs gorm AutoMigrate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/userprod/account-service/internal/config"
	"github.com/userprod/account-service/internal/database"
	"github.com/userprod/account-service/internal/logger"
)

func main() {
	level := flag.String("log-level", "info", "log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [up|down|status|version|redo]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	log := logger.New(os.Getenv("ENVIRONMENT"), *level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database configuration")
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	switch {
	case dbCfg.Driver == config.DriverPostgres:
		err = database.RunGoose(ctx, db, command, flag.Args()[min(1, flag.NArg()):]...)
	case command == "up":
		err = database.Migrate(ctx, db, dbCfg.Driver)
	default:
		err = fmt.Errorf("%s only supports the up command", dbCfg.Driver)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}
	log.Info().Str("driver", dbCfg.Driver).Str("command", command).Msg("migration finished")
}
