package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/ironsheep/traffic-violations-mcp/internal/api"
	"github.com/ironsheep/traffic-violations-mcp/internal/config"
	"github.com/ironsheep/traffic-violations-mcp/internal/logging"
	"github.com/ironsheep/traffic-violations-mcp/internal/service"
)

// Version information - set by ldflags during build
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "configuration file (YAML, TOML or JSON)")
	addr := flag.String("addr", "", "listen address, overrides http.addr")
	showVersion := flag.Bool("version", false, "print version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("traffic-api %s\n", Version)
		return
	}

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "traffic-api: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	log := logging.New(cfg.Log, os.Stderr)
	if !cfg.Log.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := service.FromConfig(cfg, clock.New(), log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, svc.Close()) }()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(svc, cfg.HTTP, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
