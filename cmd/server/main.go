// The server command runs the transaction merge collector: the scheduled
// batch pipeline plus the read-only query API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/tx-collector/internal/api"
	"github.com/dvloznov/tx-collector/internal/batch"
	"github.com/dvloznov/tx-collector/internal/config"
	"github.com/dvloznov/tx-collector/internal/feed"
	"github.com/dvloznov/tx-collector/internal/filedb"
	"github.com/dvloznov/tx-collector/internal/history"
	"github.com/dvloznov/tx-collector/internal/logger"
	"github.com/dvloznov/tx-collector/internal/store"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := filedb.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("Failed to open store")
	}

	mergeStore := store.NewMergeStore(db, log)
	if err := mergeStore.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed merge collections")
	}
	recorder := history.NewRecorder(db, log)
	if err := recorder.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed history collection")
	}

	txClient := feed.NewTransactionClient(cfg.Feeds.TransactionURL, cfg.Feeds.PageSize, cfg.Feeds.Timeout, log)
	detailClient := feed.NewDetailClient(cfg.Feeds.StoreDetailURL, cfg.Feeds.PageSize, cfg.Feeds.Timeout, log)
	fileSource := feed.NewFileSource(cfg.Feeds.CSVPath, log)

	orchestrator := batch.New(batch.Config{
		Interval:          cfg.Batch.Interval,
		Size:              cfg.Batch.Size,
		Floor:             cfg.Batch.Floor,
		DetailConcurrency: cfg.Batch.DetailConcurrency,
	}, txClient, fileSource, detailClient, mergeStore, recorder, log)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go orchestrator.Start(schedulerCtx)

	handler := api.NewHandler(mergeStore, recorder, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
