// Package server initializes and runs the vault core server. It wires the
// database, object storage and services together, starts the HTTP API and
// handles graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nav2424/rift-sub004/internal/cryptox"
	"github.com/nav2424/rift-sub004/internal/logging"
	"github.com/nav2424/rift-sub004/internal/server/blobstore"
	"github.com/nav2424/rift-sub004/internal/server/config"
	"github.com/nav2424/rift-sub004/internal/server/dailyroot"
	"github.com/nav2424/rift-sub004/internal/server/disclosure"
	"github.com/nav2424/rift-sub004/internal/server/httpapi"
	"github.com/nav2424/rift-sub004/internal/server/ledger"
	"github.com/nav2424/rift-sub004/internal/server/repositories/repomanager"
	"github.com/nav2424/rift-sub004/internal/server/signing"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *httpapi.API
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	signer, err := signing.New(c.SigningPrivateKey, c.SigningPublicKey)
	if err != nil {
		return nil, fmt.Errorf("signing key error: %w", err)
	}

	blobs := blobstore.New(blobstore.Config{
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		PresignTTL:   c.PresignTTL,
	})

	eventRepo := rm.Events(db)
	ledgerSvc := ledger.NewService(eventRepo, c.IdentifierHashSalt, logger)
	rootSvc := dailyroot.NewService(eventRepo, rm.Roots(db), signer, dailyroot.NewPostgresDayLocker(db), logger)

	vaultKey := cryptox.DeriveKey([]byte(c.VaultMasterKey), []byte(c.VaultKeySalt))
	partiesRepo := rm.Transactions(db)
	discSvc := disclosure.NewService(
		rm.Assets(db), partiesRepo, eventRepo, ledgerSvc,
		disclosure.NewTokens(c.SecretKey, c.ContentRefTTL),
		blobs, vaultKey, logger,
	)

	api := httpapi.New(ledgerSvc, rootSvc, discSvc, partiesRepo, blobs, logger)

	return &App{config: c, logger: logger, db: db, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.api.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
