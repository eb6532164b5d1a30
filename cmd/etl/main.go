package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"songplays_etl/internal/config"
	"songplays_etl/internal/logging"
	"songplays_etl/internal/metrics"
	"songplays_etl/internal/pipeline"
)

func main() {
	configPath := os.Getenv("ETL_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		logrus.Fatalf("Failed to build logger: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"config": cfg.Source,
		"input":  cfg.Input.String(),
		"output": cfg.Output.String(),
	}).Info("Starting songplays ETL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Open(cfg, logger, metrics.New())
	if err != nil {
		logger.Fatalf("Failed to initialise pipeline: %v", err)
	}

	stats, err := p.Run(ctx)
	p.Cleanup()
	if err != nil {
		logger.WithError(err).Fatal("Pipeline failed")
	}

	logger.WithFields(logrus.Fields{
		"duration":     stats.TotalExecutionTime,
		"song_records": stats.SongRecordsRead,
		"log_events":   stats.LogEventsRead,
		"song_plays":   stats.SongPlayEvents,
		"files":        stats.FilesWritten,
	}).Info("ETL pipeline completed successfully!")
}
