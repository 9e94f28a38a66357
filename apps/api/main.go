package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	echoapi "github.com/tqwops/fieldops/apps/api/echo"
	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
	logsvc "github.com/tqwops/fieldops/services/logger"
	watchersvc "github.com/tqwops/fieldops/services/watcher"
	"github.com/tqwops/fieldops/storage/database"
	inmemdb "github.com/tqwops/fieldops/storage/database/inmem"
	"github.com/tqwops/fieldops/storage/database/pgsessions"
	sqlxrepos "github.com/tqwops/fieldops/storage/database/sqlx"
	"github.com/tqwops/fieldops/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		return err
	}

	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if conf.Debug || conf.RollbarToken == "" {
		logger = logsvc.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}
	logger.Enable(true)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		return fmt.Errorf("opening database: %v", err)
	}
	defer db.Close()
	if err := database.Ping(db); err != nil {
		return fmt.Errorf("pinging database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrating database: %v", err)
	}

	// sessions live in Postgres when configured; else in memory
	var sessStore session.Store
	if conf.SessionDatabase.Host != "" {
		pgStore, err := pgsessions.Open(conf)
		if err != nil {
			return fmt.Errorf("opening session store: %v", err)
		}
		defer pgStore.Close()
		sessStore = pgStore
		logger.Info("sessions: postgres store")
	} else {
		sessStore = inmemdb.NewSessionStore()
		logger.Warn("sessions: in-memory store, sessions are lost on restart")
	}

	// set up services
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), conf)
	sessSvc := session.NewService(sessStore, conf, logger)

	hub := ws.NewHub(logger)
	defer hub.Close()

	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), hub, logger)

	watcher := watchersvc.New(sqlxrepos.NewReportRepository(db), hub, logger, watchersvc.DefaultInterval)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("%s initializing : version %q", conf.AppName, conf.Build))
	defer logger.Info("Application stopped")

	sessSvc.StartSweeper()
	defer sessSvc.Stop()

	watcher.Start()
	defer watcher.Stop()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(&echoapi.Options{
		Addr:       conf.Server.Address(),
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		SessionSvc: sessSvc,
		NotifSvc:   notifSvc,
		Hub:        hub,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address()))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %v", err)

	case <-server.ShutdownRequested():
		logger.Info("integrity issue: shutting down")

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: start shutdown...", sig))
	}

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("could not stop server gracefully: %v", err)
	}
	return nil
}
