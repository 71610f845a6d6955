package main

import (
	"github.com/rs/zerolog/log"

	"caption-studio/internal/bootstrap"
	"caption-studio/internal/logging"
)

func main() {
	logging.Init(logging.DefaultConfig())

	app, err := bootstrap.New()
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap app")
	}

	if err := app.Run(); err != nil {
		log.Fatal().Err(err).Msg("run app")
	}
}
