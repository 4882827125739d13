// Command dispatcher is the process entrypoint: it wires configuration,
// logging, the language registry, scratch manager, sandbox runtime, queue
// and record-store clients into a Dispatcher and runs it until a
// termination signal arrives. Grounded on
// original_source/backend/execution-worker/main.go's connect-then-loop
// structure and workers/golang/main.go's environment-driven Redis
// bootstrap, generalized to also bring up Postgres and the Docker SDK
// client before entering the worker loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/softgate/rce-dispatcher/config"
	"github.com/softgate/rce-dispatcher/dispatcher"
	"github.com/softgate/rce-dispatcher/executor"
	"github.com/softgate/rce-dispatcher/logging"
	"github.com/softgate/rce-dispatcher/queue"
	"github.com/softgate/rce-dispatcher/records"
	"github.com/softgate/rce-dispatcher/registry"
	"github.com/softgate/rce-dispatcher/sandbox"
	"github.com/softgate/rce-dispatcher/scratch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("rce-dispatcher starting",
		zap.Int("concurrency", cfg.DispatcherConcurrency),
		zap.String("scratchVolume", cfg.ScratchVolumeName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.Default()
	logger.Info("language registry ready", zap.Strings("supported", reg.Supported()))

	scr, err := scratch.New(cfg.ScratchHostPath, "/code", logger)
	if err != nil {
		return fmt.Errorf("init scratch manager: %w", err)
	}
	scr.SweepOrphans()

	runtime, err := sandbox.NewDockerRuntime(ctx, cfg.SandboxRuntimeSocket)
	if err != nil {
		return fmt.Errorf("connect to sandbox runtime: %w", err)
	}

	q, err := queue.Connect(ctx, cfg.QueueURL)
	if err != nil {
		return fmt.Errorf("connect to work queue: %w", err)
	}
	defer q.Close()
	logger.Info("connected to work queue")

	store, err := records.Connect(cfg.RecordStoreURL)
	if err != nil {
		return fmt.Errorf("connect to record store: %w", err)
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init record store schema: %w", err)
	}
	logger.Info("connected to record store")

	exec := executor.New(reg, scr, runtime, cfg.ScratchVolumeName, "/code", logger)
	d := dispatcher.New(q, store, exec, cfg.DispatcherConcurrency, logger)

	d.Start(ctx)
	logger.Info("dispatcher running")

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight jobs")
	d.Stop(config.ShutdownGrace)
	logger.Info("shutdown complete")

	return nil
}
