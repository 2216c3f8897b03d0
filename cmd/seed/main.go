package main

import (
	"flag"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/config"
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/utils/logger"
)

func main() {
	samples := flag.Bool("samples", true, "seed a sample listening exam and reading passages")
	flag.Parse()

	// Load environment variables
	if err := config.LoadENV(); err != nil {
		log.Fatal().Err(err).Msg("failed to load environment")
	}
	env, err := config.Get()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(env.GO_ENV, env.LOG_LEVEL)

	store, err := database.StartGORM(env)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// The staff account is skipped when ADMIN_EMAIL or ADMIN_PASSWORD is unset
	err = database.NewSeeder(store.GetDB()).SeedAll(database.SeedOptions{
		AdminEmail:    env.ADMIN_EMAIL,
		AdminPassword: env.ADMIN_PASSWORD,
		SampleContent: *samples,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
}
