package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/ironsheep/traffic-violations-mcp/internal/config"
	"github.com/ironsheep/traffic-violations-mcp/internal/logging"
	"github.com/ironsheep/traffic-violations-mcp/internal/server"
	"github.com/ironsheep/traffic-violations-mcp/internal/service"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var configPath string

	// Handle --version, --help and --config flags
	for i := 1; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--version", "-v", "version":
			fmt.Printf("%s %s\n", server.Name, Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--config", "-c":
			if i+1 >= len(os.Args) {
				fmt.Fprintln(os.Stderr, "--config requires a path")
				os.Exit(2)
			}
			i++
			configPath = os.Args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown argument %q (see --help)\n", os.Args[i])
			os.Exit(2)
		}
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", server.Name, err)
		os.Exit(1)
	}
}

func run(configPath string) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol, logs go to stderr
	log := logging.New(cfg.Log, os.Stderr)
	log.Debug().Str("version", Version).Str("built", BuildTime).Str("commit", GitCommit).Msg("starting")

	svc, err := service.FromConfig(cfg, clock.New(), log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, svc.Close()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(svc, Version, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Debug().Msg("stopped")
	return nil
}

func printHelp() {
	fmt.Printf("%s - MCP server for traffic violation detection\n", server.Name)
	fmt.Println()
	fmt.Printf("Usage: %s [options]\n", server.Name)
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config, -c PATH  Read configuration from a YAML/TOML/JSON file")
	fmt.Println("  --version, -v      Print version information")
	fmt.Println("  --help, -h         Print this help message")
	fmt.Println()
	fmt.Println("Environment variables override the file, e.g.:")
	fmt.Printf("  %s_LOG_LEVEL=debug           Enable debug logging\n", config.EnvPrefix)
	fmt.Printf("  %s_DETECTOR_BACKEND=http     Use a remote detector\n", config.EnvPrefix)
	fmt.Printf("  %s_DETECTOR_ENDPOINT=URL     Detector endpoint\n", config.EnvPrefix)
	fmt.Printf("  %s_OCR_BACKEND=none          Disable plate recognition\n", config.EnvPrefix)
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
