package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcmexdev/saga-orchestrator/internal/order-service/adapters/httpx"
	"github.com/jcmexdev/saga-orchestrator/internal/order-service/adapters/memory"
	"github.com/jcmexdev/saga-orchestrator/internal/order-service/adapters/postgres"
	"github.com/jcmexdev/saga-orchestrator/internal/order-service/app"
	"github.com/jcmexdev/saga-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/bootstrap"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/participant"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc, err := bootstrap.Start(ctx, config.ServiceOrder)
	if err != nil {
		slog.Error("failed to start order service", "error", err)
		os.Exit(1)
	}
	defer proc.Close()

	db, err := proc.Postgres(ctx, postgres.Schema)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		proc.Close()
		os.Exit(1)
	}
	var repo domain.Repository = memory.NewRepository()
	if db != nil {
		repo = postgres.NewRepository(db)
	}

	svc := app.NewService(repo, proc.Broker)
	commands := participant.NewRouter(proc.Dedupe(), proc.Logger)
	svc.Register(commands)

	router := httpx.NewRouter(httpx.NewHandler(svc), proc.Metrics)

	if err := proc.Run(ctx, messaging.QueueOrderCommands, commands.Handle, router); err != nil {
		slog.Error("order service stopped with error", "error", err)
		proc.Close()
		os.Exit(1)
	}
	slog.Info("order service stopped")
}
