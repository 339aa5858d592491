package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"preescreen/db"
	phttp "preescreen/http"
	"preescreen/logger"
	"preescreen/ml"
	"preescreen/monitoring"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log   logger.Config `yaml:"log"`
	Model struct {
		Path string `yaml:"path"`
		// HotReload reloads the artifact when the file is replaced.
		HotReload bool `yaml:"hot_reload"`
		// AllowSynthetic permits smoke-test artifacts; never in production.
		AllowSynthetic bool `yaml:"allow_synthetic"`
	} `yaml:"model"`
}

func main() {
	config, err := loadConfig("config.yaml")
	if err != nil {
		println("failed to load config:", err.Error())
		os.Exit(1)
	}

	if err := logger.Init(config.Log); err != nil {
		println("failed to init logger:", err.Error())
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.S()

	if err := db.InitDB(config.Database.Path); err != nil {
		log.Fatalw("failed to initialize database", "path", config.Database.Path, "error", err)
	}
	defer db.Close()
	log.Infow("database initialized", "path", config.Database.Path)

	// An artifact that fails to load or does not match the serving schema
	// keeps the process from starting; serving must not misclassify.
	scorer := ml.NewScorer(ml.ScreeningSchema(), log)
	scorer.AllowSynthetic = config.Model.AllowSynthetic
	if err := scorer.Load(config.Model.Path); err != nil {
		log.Fatalw("failed to load model artifact", "path", config.Model.Path, "error", err)
	}
	if config.Model.HotReload {
		if err := scorer.Watch(config.Model.Path); err != nil {
			log.Fatalw("failed to watch model artifact", "path", config.Model.Path, "error", err)
		}
		defer scorer.Close()
	}

	feed := monitoring.NewFeed(log)
	go feed.Start()
	defer feed.Stop()

	phttp.SetScorer(scorer)
	phttp.SetFeed(feed)

	server := phttp.NewServer(phttp.ServerConfig{
		Port:           config.Http.Port,
		Timeout:        time.Duration(config.Http.TimeoutSeconds) * time.Second,
		AllowedOrigins: config.Http.AllowedOrigins,
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if err := server.Stop(); err != nil {
		log.Warnw("server forced to shutdown", "error", err)
	}
	log.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
