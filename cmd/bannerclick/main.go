// CLAUDE:SUMMARY CLI entry point for bannerclick: single domain, domain list, offline HTML, HTTP API and MCP stdio modes.
// Command bannerclick detects cookie-consent banners and interacts with them.
//
// Usage:
//
//	bannerclick -domain example.com                 # one visit, results on the configured sinks
//	bannerclick -config bannerclick.yaml -list top.txt
//	bannerclick -html saved.html                    # offline analysis, no browser
//	bannerclick -serve :8090                        # HTTP API (POST /visits)
//	bannerclick -mcp                                # MCP tools over stdio
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

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/bannerclick/consent"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to bannerclick.yaml config file")
	domain := flag.String("domain", "", "visit a single domain")
	listPath := flag.String("list", "", "visit every domain of a file, one per line")
	htmlPath := flag.String("html", "", "analyze a saved HTML file without a browser")
	serveAddr := flag.String("serve", "", "serve the HTTP API on this address")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio")
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
	// stdout carries results (and MCP frames), logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath, *mcpStdio)
	if err != nil {
		logger.Error("bannerclick: config", "error", err)
		os.Exit(1)
	}

	m := mode{domain: *domain, list: *listPath, html: *htmlPath, serve: *serveAddr, mcp: *mcpStdio}
	if m.empty() {
		fmt.Fprintln(os.Stderr, "usage: bannerclick [-config file] -domain <d> | -list <file> | -html <file> | -serve <addr> | -mcp")
		os.Exit(2)
	}
	if err := run(ctx, logger, cfg, m); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bannerclick: fatal", "error", err)
		os.Exit(1)
	}
}

type mode struct {
	domain, list, html, serve string
	mcp                       bool
}

func (m mode) empty() bool {
	return m.domain == "" && m.list == "" && m.html == "" && m.serve == "" && !m.mcp
}

// offline modes need no browser.
func (m mode) offline() bool {
	return m.html != "" && m.domain == "" && m.list == "" && m.serve == "" && !m.mcp
}

func loadConfig(path string, mcpStdio bool) (*consent.Config, error) {
	cfg := consent.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = consent.LoadConfigFile(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.ParseEnv(); err != nil {
		return nil, err
	}
	if mcpStdio {
		// stdout is the MCP channel.
		var sinks []consent.SinkConfig
		for _, s := range cfg.Sinks {
			if s.Type != "stdout" {
				sinks = append(sinks, s)
			}
		}
		cfg.Sinks = sinks
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, logger *slog.Logger, cfg *consent.Config, m mode) error {
	out, store, err := consent.OpenSinks(cfg, logger)
	if err != nil {
		return err
	}

	eng, err := consent.New(cfg, consent.WithLogger(logger), consent.WithSink(out))
	if err != nil {
		out.Close()
		return err
	}
	defer eng.Close()

	if m.html != "" {
		if _, err := eng.AnalyzeFile(ctx, m.html); err != nil {
			return err
		}
		if m.offline() {
			return nil
		}
	}

	pool := consent.NewPool(eng, cfg)
	if err := pool.Start(ctx); err != nil {
		return err
	}
	defer pool.Close()

	if m.domain != "" {
		if _, err := pool.Visit(ctx, m.domain); err != nil {
			return err
		}
	}
	if m.list != "" {
		if err := runList(ctx, logger, pool, m.list); err != nil {
			return err
		}
	}

	svc := &consent.Service{Visitor: pool, Engine: eng, Logger: logger}
	if store != nil {
		svc.Store = store
	}

	switch {
	case m.serve != "" && m.mcp:
		errc := make(chan error, 1)
		go func() { errc <- serveMCP(ctx, svc) }()
		if err := serveHTTP(ctx, logger, svc, m.serve); err != nil {
			return err
		}
		return <-errc
	case m.serve != "":
		return serveHTTP(ctx, logger, svc, m.serve)
	case m.mcp:
		return serveMCP(ctx, svc)
	}
	return nil
}

func runList(ctx context.Context, logger *slog.Logger, pool *consent.Pool, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open list: %w", err)
	}
	domains, err := consent.ReadDomains(f)
	f.Close()
	if err != nil {
		return err
	}
	start := time.Now()
	logger.Info("bannerclick: crawl started", "domains", len(domains))
	err = pool.Run(ctx, domains)
	logger.Info("bannerclick: crawl finished", "domains", len(domains), "elapsed", time.Since(start).Round(time.Second))
	return err
}

func serveHTTP(ctx context.Context, logger *slog.Logger, svc *consent.Service, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// A visit may wait for the page load, every detection attempt and
		// the interaction clicks.
		WriteTimeout: 5 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("bannerclick: http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("bannerclick: shutdown", "error", err)
	}
	logger.Info("bannerclick: http stopped")
	return nil
}

func serveMCP(ctx context.Context, svc *consent.Service) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "bannerclick", Version: version}, nil)
	svc.RegisterMCP(srv)
	return srv.Run(ctx, &mcp.StdioTransport{})
}
