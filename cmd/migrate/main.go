// Entry point for schema migrations
package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"punchclock.service/internal/config"
	"punchclock.service/migrations"
	"punchclock.service/pkg/database"
	"punchclock.service/pkg/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back the latest migration instead of applying pending ones")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	logger.Setup(cfg.IsLocalDev)

	ctx := context.Background()
	db, err := database.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()

	if *down {
		err = migrations.Down(ctx, db)
	} else {
		err = migrations.Up(ctx, db)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Bool("down", *down).Msg("Database migration completed successfully")
}
