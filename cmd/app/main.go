package main

import (
	"speechflow/internal/bootstrap"
	"speechflow/internal/logging"
)

func main() {
	log := logging.New("speechflow")

	app, err := bootstrap.New(log)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap app")
	}

	if err := app.Run(); err != nil {
		log.Fatal().Err(err).Msg("run app")
	}
}
