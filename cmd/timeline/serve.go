package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/config"
	"github.com/alfredjeanlab/livetimeline/internal/events"
	"github.com/alfredjeanlab/livetimeline/internal/poller"
	"github.com/alfredjeanlab/livetimeline/internal/queue"
	"github.com/alfredjeanlab/livetimeline/internal/server"
	"github.com/alfredjeanlab/livetimeline/internal/store"
	"github.com/alfredjeanlab/livetimeline/internal/store/memory"
	"github.com/alfredjeanlab/livetimeline/internal/store/postgres"
	timelinesync "github.com/alfredjeanlab/livetimeline/internal/sync"
	"github.com/alfredjeanlab/livetimeline/internal/timeline"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Run the queue poller and the timeline HTTP API",
	GroupID:           "system",
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Persistence: Postgres when configured, otherwise in-memory.
		var st store.Store
		if cfg.DatabaseURL != "" {
			pg, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			st = pg
			logger.Info("postgres store enabled")
		} else {
			st = memory.New()
			logger.Info("in-memory store (TIMELINE_DATABASE_URL not set)")
		}

		tl, err := timeline.Open(ctx, st)
		if err != nil {
			st.Close()
			return err
		}
		logger.Info("timeline loaded", "events", tl.Len())

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (TIMELINE_NATS_URL not set)")
		}

		loadSettings := func() (config.Settings, error) {
			return config.LoadSettings(cfg.SettingsFile)
		}

		p := poller.New(tl, queue.Dial, logger)
		timelineServer := server.NewTimelineServer(tl, p, loadSettings, publisher, logger)
		timelineServer.Presence.StartReaper(nil)

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: timelineServer.NewHTTPHandler(cfg.AuthToken),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		if cfg.AutoStart {
			s, err := loadSettings()
			if err != nil {
				logger.Error("loading settings", "path", cfg.SettingsFile, "err", err)
			} else if err := p.Start(s); err != nil {
				// The error is also visible through /v1/status.
				logger.Warn("poller not started", "err", err)
			}
		}

		// Restart a running poller when the settings file changes.
		go func() {
			err := config.Watch(ctx, cfg.SettingsFile, logger, func() {
				if p.State() == poller.StateIdle {
					return
				}
				s, err := loadSettings()
				if err != nil {
					logger.Error("reloading settings", "err", err)
					return
				}
				logger.Info("settings changed, reconnecting", "backend", s.Backend)
				if err := p.Restart(s); err != nil {
					logger.Warn("poller restart failed", "err", err)
				}
			})
			if err != nil {
				logger.Warn("settings watcher disabled", "err", err)
			}
		}()

		var scheduler *timelinesync.Scheduler
		if cfg.SyncInterval > 0 && cfg.SyncS3Bucket != "" {
			dest, err := timelinesync.NewS3Destination(ctx, timelinesync.S3Options{
				Bucket:   cfg.SyncS3Bucket,
				Key:      cfg.SyncS3Key,
				Region:   cfg.SyncS3Region,
				Endpoint: cfg.SyncS3Endpoint,
			})
			if err != nil {
				logger.Error("failed to create S3 sync destination", "err", err)
			} else {
				scheduler = timelinesync.NewScheduler(tl, []timelinesync.Destination{dest}, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval, "destination", dest.Name())
			}
		}

		<-ctx.Done()
		logger.Info("received signal, shutting down")

		p.Stop()
		logger.Info("poller stopped")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		timelineServer.Close()

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
