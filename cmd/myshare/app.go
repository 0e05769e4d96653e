package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/souvikree/myShare/internal/config"
	"github.com/souvikree/myShare/internal/events"
	"github.com/souvikree/myShare/internal/files"
	"github.com/souvikree/myShare/internal/fs"
	"github.com/souvikree/myShare/internal/mongostore"
	"github.com/souvikree/myShare/internal/sqlite"
)

// app holds the wired file service and the resources it owns.
type app struct {
	service *files.Service
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	storage, err := fs.NewStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	repo, err := a.openRepository(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	// Left as a nil interface when NATS is not configured.
	var notifier files.Notifier
	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return publisher.Close() })
		notifier = publisher
		slog.Info("Publishing file events", "nats_url", cfg.NATSURL)
	}

	a.service = files.NewService(storage, repo, notifier, cfg.Retention)
	return a, nil
}

func (a *app) openRepository(ctx context.Context, cfg *config.Config) (files.Repository, error) {
	switch cfg.DBDriver {
	case config.DriverMongo:
		repo, err := mongostore.NewRepository(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.Retention)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mongo repository: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		slog.Info("Using mongo metadata store", "database", cfg.MongoDatabase)
		return repo, nil
	default:
		repo, err := sqlite.NewRepository(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite repository: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return repo.Close() })
		slog.Info("Using sqlite metadata store", "path", cfg.DBPath)
		return repo, nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
