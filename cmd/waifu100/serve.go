package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bodul/waifu100/internal/logging"
	"github.com/bodul/waifu100/internal/server"
	"github.com/bodul/waifu100/internal/share"
	"github.com/bodul/waifu100/internal/verdict"
)

const janitorInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{Logger: logger}

	rdb, err := share.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, sharing and community feed disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		store := share.NewStore(rdb,
			share.WithPrefix(cfg.Redis.KeyPrefix),
			share.WithFeedSize(cfg.Feed.Size),
			share.WithLogger(logger),
		)
		deps.Shares = store
		deps.Feed = share.NewFeedCache(store, cfg.Feed.CacheTTL)
		logger.Info("redis connected", zap.String("prefix", cfg.Redis.KeyPrefix))
	}

	if cfg.AnalysisEnabled() {
		client, err := verdict.NewClient(ctx, cfg.Gemini, logger)
		if err != nil {
			return err
		}
		deps.Analyzer = client
		logger.Info("gemini client initialized", zap.String("model", client.Model()))
	} else {
		logger.Info("no gemini credentials, taste analysis disabled")
	}

	srv := server.NewServer(cfg, deps)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           logging.Middleware(logger, srv),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", zap.String("addr", "http://"+cfg.Addr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Janitor(gctx, janitorInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
