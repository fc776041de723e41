// Command admin-service exposes the admin API and proxies book management to catalog-service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RassulYunussov/svcclient"
	"github.com/RassulYunussov/svcclient/internal/admin"
	"github.com/RassulYunussov/svcclient/internal/auth"
	"github.com/RassulYunussov/svcclient/internal/catalog"
	"github.com/RassulYunussov/svcclient/internal/config"
	"github.com/RassulYunussov/svcclient/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json, toml)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("admin-service stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log := logger.Setup(os.Stdout, cfg.Server.LogLevel).With(slog.String("app", cfg.Server.ServiceName))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	catalogClient, err := svcclient.Create(cfg.Services.Catalog.ClientConfig(catalog.ServiceName),
		svcclient.WithLogger(log),
		svcclient.WithMetrics(reg),
		svcclient.WithCircuitBreaker(1, 5, time.Minute, 30*time.Second))
	if err != nil {
		return err
	}

	handler := admin.NewHandler(cfg.Server.ServiceName, catalog.NewService(catalogClient), auth.NewService(cfg.Auth))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("admin-service listening", slog.String("addr", server.Addr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not close connections in time: %w", err)
	}
	log.Info("http server closed")
	return nil
}
