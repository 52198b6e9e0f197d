package main

import (
	"flag"
	"os"
	"path/filepath"

	"speechflow/internal/backend/registry"
	"speechflow/internal/config"
	"speechflow/internal/jobs"
	"speechflow/internal/logging"
	"speechflow/internal/media"
	"speechflow/internal/modelcache"
	"speechflow/internal/orchestrator"
	"speechflow/internal/output"
	"speechflow/internal/server"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	log := logging.New("speechflow-server")

	cfg, err := config.LoadServer(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load server config")
	}

	settings := config.DefaultSettings()
	if homeDir, err := os.UserHomeDir(); err == nil {
		store := config.NewJSONStore(filepath.Join(homeDir, ".speechflow", "settings.json"))
		if loaded, err := store.Load(); err == nil {
			settings = loaded
		} else {
			log.Warn().Err(err).Msg("settings unreadable, using defaults")
		}
	}

	transcoder := media.NewTranscoder(log)
	reg := registry.New(transcoder, log)
	cache := modelcache.New(reg.Loader(), log)
	runner := jobs.NewRunner(cache, output.NewWriter(), log)
	svc := orchestrator.NewService(runner, cfg.EventBufferSize, log)

	srv := server.NewServer(cfg, svc, settings, log)
	log.Info().Str("addr", cfg.ListenAddr).Msg("starting http server")
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("http server exited")
	}
}
