package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fasttrack/internal/api"
	"fasttrack/internal/scanner"
	"fasttrack/internal/server"
	"fasttrack/internal/wizard"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the kiosk and staff HTTP server",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	logger := newLogger(config, &logrus.JSONFormatter{})

	client := api.New(
		config.APIBaseURL,
		api.WithLogger(logger),
		api.WithTimeout(time.Duration(config.APITimeoutSec)*time.Second),
	)

	drafts := wizard.NewRegistry(
		time.Duration(config.DraftTTLMin)*time.Minute,
		func() *wizard.Controller {
			return wizard.NewController(client, logger)
		},
		logger,
	)

	scans := scanner.NewRouter(client, config.ScanLookupsPerSec, logger)

	srv, err := server.New(config, logger, client, drafts, scans)
	if err != nil {
		return err
	}

	go srv.RunJanitor(ctx, time.Minute)

	go func() {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}
