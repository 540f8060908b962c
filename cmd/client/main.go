// Package main starts the VoteKeeper terminal client: configuration,
// logging, the persisted session, the API gateway and the command shell.
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/api"
	"github.com/atinyakov/VoteKeeper/internal/config"
	"github.com/atinyakov/VoteKeeper/internal/logger"
	"github.com/atinyakov/VoteKeeper/internal/receipt"
	"github.com/atinyakov/VoteKeeper/internal/session"
	"github.com/atinyakov/VoteKeeper/internal/shell"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	var showVer bool
	flag.BoolVar(&showVer, "version", false, "show build version and date")

	// Parse command-line, .env, config-file and environment configuration.
	options := config.Parse()

	if showVer {
		fmt.Printf("VoteKeeper Client\nVersion: %s\nBuild Date: %s\n",
			cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	// Initialize structured logging.
	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	// Read the persisted session once; a broken file means "logged out".
	store := session.New(options.SessionFile, zapLogger)
	if err := store.Load(); err != nil {
		zapLogger.Fatal("cannot read session file", zap.Error(err))
	}

	// The gateway attaches session cookies automatically.
	client, err := api.New(options.ServerURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init api client", zap.Error(err))
	}

	exporter := receipt.NewExporter(options.ReceiptDir, zapLogger)

	zapLogger.Info("client starting",
		zap.String("server", options.ServerURL),
		zap.String("session", options.SessionFile),
	)

	sh := shell.New(client, store, exporter, zapLogger, os.Stdin, os.Stdout)
	sh.Run(context.Background())
}
