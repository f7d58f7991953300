package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/holte-dev/safetyflash/internal/audit"
	"github.com/holte-dev/safetyflash/internal/config"
	"github.com/holte-dev/safetyflash/internal/limiter"
	"github.com/holte-dev/safetyflash/internal/migrate"
	"github.com/holte-dev/safetyflash/internal/obs"
	"github.com/holte-dev/safetyflash/internal/repository/postgres"
	httpserver "github.com/holte-dev/safetyflash/internal/server/http"
	"github.com/holte-dev/safetyflash/internal/service"
	"github.com/holte-dev/safetyflash/internal/session"
	"github.com/holte-dev/safetyflash/internal/workflow"
)

const (
	loginFailWindow = 15 * time.Minute
	loginMaxFails   = 5
	loginBlockFor   = 15 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(*configPath, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(configPath string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
		return err
	}

	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	obs.Init()

	sink := audit.NewFileSink(cfg.AuditLogPath)
	defer sink.Close() //nolint:errcheck
	trail := audit.New(postgres.NewAuditRepo(db), sink, log)

	users := postgres.NewUserRepo(db)
	sessions := postgres.NewSessionRepo(db)
	flashes := postgres.NewFlashRepo(db)

	guard := session.NewGuard(sessions, trail, cfg.SessionTimeout)
	lim := limiter.NewPG(db.Pool, loginFailWindow, loginMaxFails, loginBlockFor)

	auth := service.NewAuthService(users, sessions, trail, lim, []byte(cfg.SessionKey), cfg.SessionMaxAge)
	userAdmin := service.NewUserService(users, guard, trail)
	engine := workflow.NewService(flashes, trail, nil, log)

	srv := httpserver.New(cfg, log, auth, userAdmin, engine, guard, trail)
	return srv.Run(ctx)
}
