package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexiconlabs/tokengate/internal/app"
	"github.com/lexiconlabs/tokengate/internal/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (default config.yaml, or TOKENGATE_CONFIG)")
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	configPath := config.ResolvePath(*configFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, configPath); errMigrate != nil {
			log.WithError(errMigrate).Fatal("migration failed")
		}
		log.Info("migration complete")
		return
	}

	if errRun := app.RunServer(ctx, configPath); errRun != nil {
		log.WithError(errRun).Fatal("server exited")
	}
}
