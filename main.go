// Entry point for the PARIX analytics service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/parix-analytics/parix-go/pkg/config"
	"github.com/parix-analytics/parix-go/utils"
)

const parixVersion = "v0.1.0"

func main() {
	args := os.Args[1:]

	configPath := "config.yaml"
	mode := "server"

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-h", "--help", "help":
			printHelp()
			return
		case "--version", "-v":
			fmt.Println("PARIX version:", parixVersion)
			return
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --config requires a file path")
				os.Exit(1)
			}
			i++
			configPath = args[i]
		case "--reload":
			mode = "reload"
		case "--server":
			mode = "server"
		default:
			fmt.Fprintln(os.Stderr, "Unknown argument. Use --help for usage.")
			os.Exit(1)
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	switch mode {
	case "reload":
		runOnce(cfg)
	default:
		runServer(cfg)
	}
}

// runOnce runs one pipeline pass over the cohort CSV and exits. Useful for
// cron-driven batch refreshes outside the server process.
func runOnce(cfg *config.Config) {
	server, err := NewServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := server.LoadInitialCohort(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
	}
}

func runServer(cfg *config.Config) {
	logger := utils.GetLogger()

	server, err := NewServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing server: %v\n", err)
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	if err := server.LoadInitialCohort(startCtx); err != nil {
		// The server still starts: reload endpoints can recover once the
		// source data is fixed.
		logger.Error("Starting without an initial cohort", err)
	}
	startCancel()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8080", "*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      c.Handler(server.router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting PARIX server", utils.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Error starting server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	logger.Info("Shutting down server")

	// Give outstanding requests 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", err)
	}

	logger.Info("Server exited")
}

func printHelp() {
	fmt.Println("Usage:")
	fmt.Println("  --server                Start HTTP server (default)")
	fmt.Println("  --reload                Run one pipeline pass over the cohort CSV and exit")
	fmt.Println("  --config <path>         Configuration file (default: config.yaml)")
	fmt.Println("  -h, --help, help        Show this help message")
	fmt.Println("  -v, --version           Show PARIX version")
}
