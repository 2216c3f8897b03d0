// Command worker runs the analysis worker pool and the scheduled jobs
// without the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	if a.Worker == nil {
		log.Fatal().Msg("the analysis worker needs REDIS_URL to reach a running Redis")
	}

	if a.Env.CRON_ENABLED {
		if err := a.Cron.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start cron jobs")
		}
		defer a.Cron.Stop()
	}

	if err := a.Worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("analysis worker stopped")
		return
	}
	log.Info().Msg("worker shut down")
}
