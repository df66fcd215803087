// Package cli wires the application together and drives the interactive
// command loop.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ticketkeeper/internal/auth"
	"ticketkeeper/internal/config"
	"ticketkeeper/internal/filex"
	"ticketkeeper/internal/logging"
	"ticketkeeper/internal/netx"
	"ticketkeeper/internal/remote"
	"ticketkeeper/internal/repositories/metadata"
	"ticketkeeper/internal/repositories/pending"
	"ticketkeeper/internal/repositories/tickets"
	"ticketkeeper/internal/services"
	"ticketkeeper/internal/syncer"
)

// App owns the fully wired component graph and the interactive session state.
type App struct {
	config  *config.Config
	db      *sql.DB
	tickets services.TicketService
	creds   *auth.TokenSource
	syncer  *syncer.Syncer
	log     logging.Logger
	reader  *bufio.Reader
}

// NewApp builds the component graph: local database with migrations applied,
// repositories, the S3-backed remote adapter, the credential source, the
// ticket service and the sync orchestrator.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	dsn := cfg.DatabasePath
	if filepath.Dir(dsn) == "." {
		// bare filenames go into a data subdirectory next to the binary
		dir, err := filex.EnsureSubDir("data")
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, dsn)
	}

	db, err := InitDatabase(ctx, dsn)
	if err != nil {
		return nil, err
	}

	store := tickets.NewSQLiteRepository(db)
	queue := pending.NewSQLiteRepository(db)
	meta := metadata.NewSQLiteRepository(db)

	rem, err := remote.NewS3Store(ctx, remote.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	}, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	creds := auth.NewTokenSource(meta)

	online := func(ctx context.Context) bool {
		return netx.Online(ctx, cfg.S3Endpoint)
	}

	sc := syncer.New(store, queue, meta, rem, creds, online, log, syncer.Config{
		ArtifactName: cfg.ArtifactName,
		MaxRetries:   cfg.MaxRetries,
	})

	ts := services.NewTicketService(db, store, meta, rem, log, netx.UploadToPresignedURL)

	return &App{
		config:  cfg,
		db:      db,
		tickets: ts,
		creds:   creds,
		syncer:  sc,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

// Run starts the background sync watcher and enters the command loop. It
// returns when the user exits or the context is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.StartSyncWatcher(ctx, a.config.SyncInterval)

	runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))

	a.db.Close()
}

// StartSyncWatcher runs a sync pass on every tick until the context is
// cancelled. Passes that skip themselves (offline, not logged in) are free,
// so a fixed interval is fine.
func (a *App) StartSyncWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.syncer.Sync(ctx); err != nil {
				a.log.Warn(ctx, "background sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.creds.IsAuthorized(context.Background())
}

func (a *App) status() string {
	if a.isLoggedIn() {
		return "online"
	}
	return "local"
}
