package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/adapters/memory"
	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/adapters/postgres"
	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/app"
	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/domain"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/bootstrap"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/httpx"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/participant"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc, err := bootstrap.Start(ctx, config.ServicePayment)
	if err != nil {
		slog.Error("failed to start payment service", "error", err)
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

	commands := participant.NewRouter(proc.Dedupe(), proc.Logger)
	app.NewService(repo, proc.Broker).Register(commands)

	if err := proc.Run(ctx, messaging.QueuePaymentCommands, commands.Handle, httpx.NewRouter(proc.Metrics)); err != nil {
		slog.Error("payment service stopped with error", "error", err)
		proc.Close()
		os.Exit(1)
	}
	slog.Info("payment service stopped")
}
