// Package internal wires the sync service together and runs it.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/mcpserver"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/notice"
	"github.com/starford/cardsync/internal/reconcile"
	"github.com/starford/cardsync/internal/render"
	"github.com/starford/cardsync/internal/sse"
	"github.com/starford/cardsync/internal/storage"
	"github.com/starford/cardsync/internal/transform"
	"github.com/starford/cardsync/internal/vault"
	"github.com/starford/cardsync/internal/watcher"
)

// App is the wired sync service. It implements the command surfaces of the
// HTTP API and the MCP server.
type App struct {
	cfg    *Config
	logger *slog.Logger
	root   string

	db     *ledger.DB
	client *anki.Client
	rec    *reconcile.Reconciler
	broker *sse.Broker
}

// New builds the application from opts. WithConfig is required.
func New(opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}

	pattern, err := cfg.Cards.Pattern()
	if err != nil {
		return nil, fmt.Errorf("exclusion pattern: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := ledger.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	clientOpts := []anki.Option{anki.WithLogger(logger)}
	if app.httpClient != nil {
		clientOpts = append(clientOpts, anki.WithHTTPClient(app.httpClient))
	}
	client := anki.New(cfg.Anki.Client(), clientOpts...)

	tr := transform.New(transform.Settings{
		DefaultDeck:      cfg.Cards.DefaultDeck,
		ExcludeTags:      cfg.Cards.ExcludeTags,
		IgnoreTags:       cfg.Cards.IgnoreTags,
		ExclusionPattern: pattern,
		DiagramSupport:   cfg.Cards.DiagramSupport,
		BasePath:         store.Root(),
		AssetFolder:      cfg.Vault.AssetFolder,
		DiagramFolder:    cfg.Vault.DiagramFolder,
	}, render.NewMarkdown(cfg.Cards.SanitizeHTML))

	broker := sse.NewBroker(0)
	notifiers := append(notice.Multi{notice.Log{Logger: logger}, broker}, app.notifiers...)

	rec := reconcile.New(vault.New(store, cfg.Vault.Recursive), client, tr,
		reconcile.Settings{
			TargetFolder:        cfg.Vault.TargetFolder,
			AbortOnMediaFailure: cfg.Cards.AbortOnMediaFailure,
			SkipUnchanged:       cfg.Cards.SkipUnchanged,
		},
		reconcile.WithGuard(reconcile.NewGuard(cfg.Vault.LockPath())),
		reconcile.WithNotifier(notifiers),
		reconcile.WithLedger(db),
		reconcile.WithLogger(logger))

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("target_folder", cfg.Vault.TargetFolder),
		slog.String("anki_url", cfg.Anki.URL),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return &App{
		cfg:    cfg,
		logger: logger,
		root:   store.Root(),
		db:     db,
		client: client,
		rec:    rec,
		broker: broker,
	}, nil
}

// Close releases the ledger and disconnects SSE clients.
func (a *App) Close() error {
	a.broker.Close()
	return a.db.Close()
}

// Scan syncs every document in folder, or in the target folder when empty.
func (a *App) Scan(ctx context.Context, folder string) (*models.Report, error) {
	return a.rec.Scan(ctx, folder)
}

// SyncDocument adds or updates the card of one document.
func (a *App) SyncDocument(ctx context.Context, p string) (*models.Report, error) {
	return a.rec.SyncDocument(ctx, p)
}

// DeleteDocument deletes the card of a document and removes its identity.
func (a *App) DeleteDocument(ctx context.Context, p string) error {
	return a.rec.DeleteDocument(ctx, p)
}

// Ping checks that AnkiConnect answers.
func (a *App) Ping(ctx context.Context) error {
	return a.rec.Ping(ctx)
}

// Running reports whether a run is in progress in this process.
func (a *App) Running() bool {
	return a.rec.Running()
}

// Runs returns the most recent runs, newest first.
func (a *App) Runs(_ context.Context, limit int) ([]ledger.Run, error) {
	return a.db.Runs(limit)
}

// Documents returns the last known sync state of every document.
func (a *App) Documents(_ context.Context) ([]ledger.Document, error) {
	return a.db.Documents()
}

// Watch scans the target folder once, then syncs documents of that folder
// as they change until ctx is cancelled.
func (a *App) Watch(ctx context.Context) error {
	folder := a.cfg.Vault.TargetFolder
	if _, err := a.rec.Scan(ctx, folder); err != nil {
		if errors.Is(err, reconcile.ErrNoTargetFolder) {
			return err
		}
		a.logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	root := filepath.Join(a.root, filepath.FromSlash(folder))
	return watcher.Watch(ctx, root, a.cfg.Watch.Debounce, a.logger, func(ctx context.Context, paths []string) {
		for _, rel := range paths {
			a.syncChanged(ctx, path.Join(folder, rel))
		}
	})
}

func (a *App) syncChanged(ctx context.Context, p string) {
	if !a.cfg.Vault.Recursive && strings.Contains(strings.TrimPrefix(p, a.cfg.Vault.TargetFolder+"/"), "/") {
		return
	}
	_, err := a.rec.SyncDocument(ctx, p)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrRunInProgress):
		a.logger.Debug("watcher: run in progress, change dropped", slog.String("path", p))
	case errors.Is(err, apperr.ErrNotFound):
		a.logger.Debug("watcher: document gone", slog.String("path", p))
	default:
		a.logger.Warn("watcher: sync failed",
			slog.String("path", p),
			slog.String("error", err.Error()))
	}
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
func (a *App) ServeMCP(version string) error {
	return mcpserver.New(a, version).ServeStdio()
}
