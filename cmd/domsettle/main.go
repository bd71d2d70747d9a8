// Command domsettle decides when live pages have settled and serves the
// result over HTTP and MCP.
//
// Usage:
//
//	domsettle -config settle.yaml           # serve from YAML config
//	domsettle -url https://example.com      # settle a single URL and exit
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsettle"
	"github.com/hazyhaar/domsettle/mcpquic"
	"github.com/hazyhaar/domsettle/service"
)

func main() {
	configPath := flag.String("config", "", "path to settle.yaml config file")
	singleURL := flag.String("url", "", "settle a single URL, print the result, exit")
	markdown := flag.Bool("markdown", false, "include markdown in single-URL output")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *markdown); err != nil {
		logger.Error("domsettle: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL string, markdown bool) error {
	if singleURL != "" {
		return runSingle(ctx, logger, singleURL, markdown)
	}

	if configPath != "" {
		return runServe(ctx, logger, configPath)
	}

	fmt.Fprintln(os.Stderr, "usage: domsettle -config <file> | -url <url>")
	os.Exit(1)
	return nil
}

func runSingle(ctx context.Context, logger *slog.Logger, url string, markdown bool) error {
	cfg := &domsettle.Config{}
	s := domsettle.NewSettler(cfg, logger)

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer s.Stop()

	res, err := s.Settle(ctx, &domsettle.Request{URL: url, Markdown: markdown})
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(res)
}

func runServe(ctx context.Context, logger *slog.Logger, path string) error {
	cfg, err := domsettle.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s := domsettle.NewSettler(cfg, logger)
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer s.Stop()

	svc := service.New(s, logger)

	if cfg.MCP.QUICAddr != "" {
		if err := serveMCPQUIC(ctx, logger, cfg, svc); err != nil {
			logger.Error("domsettle: mcp quic", "error", err)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: svc.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("domsettle: listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serveMCPQUIC starts the optional MCP listener in the background.
func serveMCPQUIC(ctx context.Context, logger *slog.Logger, cfg *domsettle.Config, svc *service.Service) error {
	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "domsettle",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(mcpSrv)

	var tlsCfg *tls.Config
	var err error
	if cfg.MCP.TLSCert != "" && cfg.MCP.TLSKey != "" {
		tlsCfg, err = mcpquic.ServerTLSConfig(cfg.MCP.TLSCert, cfg.MCP.TLSKey)
	} else {
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	ql, err := mcpquic.NewListener(cfg.MCP.QUICAddr, tlsCfg, mcpSrv, logger)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		logger.Info("domsettle: mcp quic listening", "addr", cfg.MCP.QUICAddr)
		if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Error("domsettle: mcp quic serve", "error", err)
		}
		ql.Close()
	}()
	return nil
}
