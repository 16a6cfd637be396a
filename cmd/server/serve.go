package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/eggcount/internal/backend"
	"github.com/jo-hoe/eggcount/internal/backend/metrics"
	"github.com/jo-hoe/eggcount/internal/common"
	"github.com/jo-hoe/eggcount/internal/core"
	frontend "github.com/jo-hoe/eggcount/internal/frontend"
)

const shutdownTimeout = 10 * time.Second

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	config, err := core.LoadConfig(configPath)
	if err != nil {
		log.Printf("failed to load config from %s: %v", configPath, err)
		return err
	}

	coreService, err := core.NewCoreService(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := coreService.Close(); err != nil {
			log.Printf("core service close error: %v", err)
		}
	}()

	server := common.NewServer(config.Server.BodyLimit)

	apiService := backend.NewAPIService(coreService, metrics.New())
	apiService.SetRoutes(server)
	frontendService := frontend.NewFrontendService(coreService)
	frontendService.SetRoutes(server)

	portString := fmt.Sprintf(":%d", config.Port)

	// Start HTTP server in a goroutine to allow graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %d", config.Port)
		if err := server.Start(portString); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			log.Printf("http server error: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
		return err
	}
	return nil
}
