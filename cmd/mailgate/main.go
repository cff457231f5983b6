package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hickar/mailgate/internal/app/cache"
	"github.com/hickar/mailgate/internal/app/config"
	"github.com/hickar/mailgate/internal/app/mailbox"
	"github.com/hickar/mailgate/internal/app/server"
	"github.com/hickar/mailgate/internal/pkg/logger"
)

var (
	configFilepath = flag.String("config", "./config.yaml", "Filepath to configuration file. Default is './config.yaml'")
	envFilepath    = flag.String("env-file", "./.env", "Filepath to environment variables file. Default is '.env'")
)

const shutdownTimeout = 10 * time.Second

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFilepath, *envFilepath)
	if err != nil {
		log.Fatalf("failed to load configuration: %s", err)
	}

	slogger := slog.New(logger.NewContextHandler(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       slog.Level(cfg.LogLevel),
			ReplaceAttr: logger.ReplaceAttr,
		}),
	))

	attachmentCache, err := cache.NewLRU(cfg.CacheSize)
	if err != nil {
		log.Fatalf("failed to initialize attachment cache: %s", err)
	}

	lister := mailbox.NewLister(
		cfg.IMAP,
		mailbox.DialIMAP,
		slogger.With(slog.String("module", "lister")),
	)
	sender := mailbox.NewSender(
		cfg.SMTP,
		mailbox.DialSMTP,
		slogger.With(slog.String("module", "sender")),
	)
	downloader := mailbox.NewDownloader(
		lister,
		attachmentCache,
		slogger.With(slog.String("module", "downloader")),
	)

	gateway := server.New(
		lister,
		sender,
		downloader,
		cfg.DefaultLimit,
		slogger.With(slog.String("module", "server")),
	)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: gateway.Router(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slogger.Info(fmt.Sprintf("listening on %s", cfg.Listen), slog.String("module", "main"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slogger.Error(fmt.Sprintf("server exited with error: %s", err), slog.String("module", "main"))
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slogger.Error(fmt.Sprintf("shutdown failed: %s", err), slog.String("module", "main"))
	}
}
