package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jcmexdev/saga-orchestrator/internal/coordinator"
	"github.com/jcmexdev/saga-orchestrator/internal/coordinator/sagastore"
	"github.com/jcmexdev/saga-orchestrator/internal/coordinator/sagastore/sqlite"
	orchestratorhttp "github.com/jcmexdev/saga-orchestrator/internal/orchestrator/httpx"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/bootstrap"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc, err := bootstrap.Start(ctx, config.ServiceOrchestrator)
	if err != nil {
		slog.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}
	defer proc.Close()

	store, err := openStore(proc)
	if err != nil {
		slog.Error("failed to open saga store", "error", err)
		proc.Close()
		os.Exit(1)
	}

	runner := coordinator.NewRunner(store, proc.Broker,
		coordinator.WithLogger(proc.Logger),
		coordinator.WithMetrics(proc.Metrics),
	)
	dispatcher := coordinator.NewDispatcher(runner, proc.Logger)
	router := orchestratorhttp.NewRouter(orchestratorhttp.NewHandler(runner), proc.Metrics)

	if err := proc.Run(ctx, messaging.QueueOrchestratorEvents, dispatcher.Handle, router); err != nil {
		slog.Error("orchestrator stopped with error", "error", err)
		proc.Close()
		os.Exit(1)
	}
	slog.Info("orchestrator stopped")
}

func openStore(proc *bootstrap.Process) (sagastore.Store, error) {
	if proc.Config.SagaStore != config.StoreSQLite {
		proc.Logger.Info("using in-memory saga store")
		return sagastore.NewMemory(), nil
	}

	path := proc.Config.SagaSQLitePath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	repo, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	proc.OnClose(repo.Close)
	proc.Logger.Info("using sqlite saga store", "path", path)
	return repo, nil
}
