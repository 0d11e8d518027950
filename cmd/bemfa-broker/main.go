package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"bemfarelay/internal/broker"
	"bemfarelay/internal/sentry"
)

const shutdownTimeout = 30 * time.Second

// Version is set via ldflags during build.
var Version = "dev"

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := sentry.Init(os.Getenv("SENTRY_DSN"), Version); err != nil {
		log.Printf("Sentry disabled: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	tcpAddr := getenv("BROKER_TCP_ADDR", ":8344")
	httpAddr := getenv("BROKER_HTTP_ADDR", ":8080")

	// 1. Device plane (TCP line protocol)
	devices := broker.NewServer(tcpAddr, nil)

	// Channel to collect server errors
	serverErrors := make(chan error, 2)

	go func() {
		if err := devices.Start(); err != nil {
			serverErrors <- err
		}
	}()

	// 2. Registration and operator API
	api := broker.NewAPI(httpAddr, devices)
	httpServer := api.HTTPServer()

	go func() {
		log.Printf("Broker API listening on %s (HTTP)", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	// Wait for interrupt or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErrors:
		log.Printf("Server error: %v, initiating shutdown...", err)
		sentry.CaptureError(err, "broker server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err := multierr.Combine(
		httpServer.Shutdown(shutdownCtx),
		devices.Shutdown(shutdownCtx),
	)
	if err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	log.Println("Broker shutdown complete")
}
