package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/internal/api"
	"github.com/vitalis-dev/vitalis-store/internal/care"
	"github.com/vitalis-dev/vitalis-store/internal/config"
	"github.com/vitalis-dev/vitalis-store/internal/integrations"
	"github.com/vitalis-dev/vitalis-store/internal/server"
	"github.com/vitalis-dev/vitalis-store/internal/snapshot"
	"github.com/vitalis-dev/vitalis-store/internal/vault"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
	"github.com/vitalis-dev/vitalis-store/pkg/sdk"
)

// daemon is the assembled process: one store behind both servers.
type daemon struct {
	mem      *engine.MemStore
	store    engine.EntityStore
	snap     engine.Snapshotter
	tcp      *server.Router
	handler  http.Handler
	logger   *zap.Logger
	useTLS   bool
	loaded   int
	llmLabel string
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*daemon, error) {
	d := &daemon{logger: logger, useTLS: !cfg.Server.DisableTLS}

	snap, err := snapshot.New(cfg.Snapshot.Backend, cfg.SnapshotLocation(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot: %w", err)
	}
	d.snap = snap

	var initial map[string][]engine.Record
	if snap != nil {
		initial, err = snap.LoadAll()
		if err != nil {
			logger.Warn("could not load existing data", zap.Error(err))
		}
	}
	for _, records := range initial {
		d.loaded += len(records)
	}
	d.mem = engine.NewMemStore(initial, snap, engine.WithLogger(logger.Named("engine")))
	d.store = d.mem

	key, err := cfg.MasterKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		sealed, err := sdk.Seal(d.mem, key, sdk.SealPolicy(cfg.Vault.SealedFields))
		if err != nil {
			return nil, err
		}
		d.store = sealed
		logger.Info("field sealing enabled", zap.Any("fields", cfg.Vault.SealedFields))
	}

	files := integrations.NewFileStore(cfg.Server.FileBaseURL)

	var llm integrations.Invoker
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		g, err := integrations.NewGeminiInvoker(ctx, cfg.LLM.APIKey, cfg.LLM.Model, files, logger.Named("llm"))
		if err != nil {
			return nil, err
		}
		llm = g
		d.llmLabel = g.Name()
	default:
		llm = &integrations.StubInvoker{}
		d.llmLabel = config.ProviderStub
	}

	gin.SetMode(gin.ReleaseMode)
	h := &api.Handler{
		Store:  d.store,
		Files:  files,
		LLM:    llm,
		Auth:   integrations.NewAuth(nil),
		Care:   care.NewService(d.store, llm, care.WithLogger(logger.Named("care")), care.WithLLMTimeout(cfg.GetLLMTimeout())),
		Logger: logger.Named("http"),
	}
	d.handler = api.NewRouter(h)

	d.tcp = server.NewRouter(d.store, logger.Named("tcp"))
	if d.useTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS certificate: %w", err)
		}
		d.tcp.SetCertificate(cert)
	}
	return d, nil
}

// close flushes pending snapshot writes and releases the snapshot backend.
func (d *daemon) close() {
	d.mem.Wait()
	if c, ok := d.snap.(snapshot.Closer); ok {
		if err := c.Close(); err != nil {
			d.logger.Warn("snapshot close failed", zap.Error(err))
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("engine started",
		zap.String("snapshot", cfg.Snapshot.Backend),
		zap.Int("records", d.loaded),
		zap.String("llm", d.llmLabel),
		zap.Bool("tls", d.useTLS))

	httpSrv := &http.Server{Addr: ":" + cfg.Server.HTTPPort, Handler: d.handler}
	errCh := make(chan error, 2)

	go func() {
		logger.Info("HTTP API listening", zap.String("port", cfg.Server.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	go func() {
		logger.Info("TCP engine listening", zap.String("port", cfg.Server.Port))
		if err := d.tcp.Listen(cfg.Server.Port); err != nil {
			errCh <- fmt.Errorf("TCP server failed: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, finalizing snapshot writes")
	case runErr = <-errCh:
		logger.Error("server stopped", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	if err := d.tcp.Stop(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("TCP shutdown", zap.Error(err))
	}
	d.close()
	logger.Info("persistence complete")
	return runErr
}
