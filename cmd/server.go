package cmd

import (
	"context"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"alpatrade/internal/bus"
	"alpatrade/internal/delivery/http"
	"alpatrade/internal/repository"
	"alpatrade/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run alpatrade",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo, err := repository.NewRepository(appDep.cfg, appDep.db.DB, appDep.log, appDep.cache)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	msgBus := bus.NewInMemoryBus(appDep.log)
	services := service.NewService(
		appDep.cfg,
		appDep.log,
		repo,
		msgBus,
	)
	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, services)

	if err := services.Orchestrator.StartCron(); err != nil {
		log.Fatalf("Failed to start orchestrator cron: %v", err)
	}

	apiServer := NewHTTPServer(ctx, appDep, httpHandler)
	go func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	services.Orchestrator.Stop()
	msgBus.Close()

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}
