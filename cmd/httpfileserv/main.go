// Command httpfileserv serves a directory over HTTP/1.1.
//
// Usage:
//
//	httpfileserv [flags] <directory_path> [port]
//	httpfileserv init [-force] [-template path]
//	httpfileserv journal [-config path] [-n N]
//
// Settings come from the config file (see config.Load), overridden by
// HTTPFILESERV_* environment variables, overridden in turn by the
// positional arguments and flags. An invalid port argument falls back to
// 8080 with a warning.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/marmos91/httpfileserv/internal/logger"
	"github.com/marmos91/httpfileserv/pkg/config"
	"github.com/marmos91/httpfileserv/pkg/server"
)

// defaultPort is used when the port argument is not a valid TCP port.
const defaultPort = config.DefaultPort

// usage prints the command synopsis and the flags of fs to w.
func usage(w io.Writer, fs *flag.FlagSet) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [flags] <directory_path> [port]\n", fs.Name())
	fmt.Fprintf(w, "  %s init [-force] [-template path]\n", fs.Name())
	fmt.Fprintf(w, "  %s journal [-config path] [-n N]\n\n", fs.Name())
	_, _ = bold.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// parsePort returns the port named by arg, or defaultPort with a warning
// when arg is not a number in 1..65535.
func parsePort(arg string, stderr io.Writer) int {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		_, _ = color.New(color.FgYellow).Fprintf(stderr,
			"Warning: invalid port %q, using default port %d\n", arg, defaultPort)
		return defaultPort
	}
	return port
}

// main dispatches to a subcommand, or to run when the first argument is
// not one, and exits with its code.
func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			os.Exit(runInit(os.Args[2:], os.Stdout, os.Stderr))
		case "journal":
			os.Exit(runJournal(os.Args[2:], os.Stdout, os.Stderr))
		}
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run starts the file server and blocks until it stops.
//
// Startup order:
//  1. Parse flags and load the configuration
//  2. Apply the positional root and port, then the -log-level override
//  3. Configure the logger
//  4. Start the metrics endpoint and open the journal, when enabled
//  5. Create the server and bind its socket
//  6. Serve until SIGINT/SIGTERM or a fatal server error
//
// On a signal the server is stopped with its shutdown timeout plus a small
// grace period, then the metrics endpoint is stopped and the journal
// closed. Returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("httpfileserv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := fs.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	if fs.NArg() >= 1 {
		cfg.Server.Root = fs.Arg(0)
	}
	if fs.NArg() >= 2 {
		cfg.Server.Port = parsePort(fs.Arg(1), stderr)
	}
	if cfg.Server.Root == "" {
		usage(stderr, fs)
		return 1
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := setupLogger(cfg); err != nil {
		fmt.Fprintf(stderr, "Failed to configure logging: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = color.New(color.FgCyan, color.Bold).Fprintln(stdout, "httpfileserv - Static HTTP File Server")
	logger.Info("Log level: %s", logger.GetLevel())
	if path := config.GetDefaultConfigPath(); *configPath == "" && !config.ConfigExists() {
		logger.Debug("No config file at %s, using defaults", path)
	}

	// metricsDone is closed straight away when metrics are disabled so the
	// final receive never blocks.
	metricsResult := config.InitializeMetrics(cfg)
	metricsDone := make(chan error, 1)
	if metricsResult.Server != nil {
		go func() {
			metricsDone <- metricsResult.Server.Start(ctx)
		}()
	} else {
		close(metricsDone)
	}

	opts := []server.Option{server.WithMetrics(metricsResult.HTTPMetrics)}
	if cfg.Journal.Enabled {
		j, err := config.CreateJournal(ctx, &cfg.Journal)
		if err != nil {
			logger.Error("Failed to open request journal: %v", err)
			return 1
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("Failed to close request journal: %v", err)
			}
		}()
		opts = append(opts, server.WithJournal(j))
		logger.Info("Request journal: %s (max %d entries)", cfg.Journal.Type, cfg.Journal.MaxEntries)
	}

	srv, err := config.CreateServer(cfg, opts...)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	logger.Info("Server configuration:")
	logger.Info("  Root: %s", srv.Root())
	logger.Info("  Port: %d", cfg.Server.Port)
	logger.Info("  Socket timeout: %v", cfg.Server.SocketTimeout)
	if cfg.Server.RateLimit.Enabled {
		logger.Info("  Rate limit: %d conn/s, burst %d (%s)",
			cfg.Server.RateLimit.ConnectionsPerSecond, cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.Mode)
	}

	if err := srv.Listen(); err != nil {
		logger.Error("%v", err)
		return 1
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running on port %d. Press Ctrl+C to stop.", srv.Port())

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
		if err := srv.Stop(stopCtx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			exitCode = 1
		}
		stopCancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server error: %v", err)
			exitCode = 1
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			exitCode = 1
		}
		logger.Info("Server stopped")
	}

	cancel()
	if err := <-metricsDone; err != nil {
		logger.Error("Metrics server error: %v", err)
	}
	return exitCode
}

// setupLogger applies the logging section of cfg.
func setupLogger(cfg *config.Config) error {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	return logger.SetOutput(cfg.Logging.Output)
}
