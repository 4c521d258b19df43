// CLAUDE:SUMMARY CLI entry point for ezpage: HTTP/MCP daemon plus one-shot apply, render, outline, stats and export modes.
// Command ezpage serves page documents to editors and agents.
//
// Usage:
//
//	ezpage -config ezpage.yaml                   # HTTP daemon, MCP at /mcp
//	ezpage -db ezpage.db -mcp stdio              # MCP over stdin/stdout
//	ezpage -db ezpage.db -page home -apply a.txt # apply envelopes and exit
//	ezpage -db ezpage.db -page home -render      # print HTML preview
//	ezpage -db ezpage.db -page home -outline     # print Markdown outline
//	ezpage -db ezpage.db -page home -stats       # print stats
//	ezpage -db ezpage.db -export site/           # write every page as HTML
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ezpage/editor"
	"github.com/hazyhaar/ezpage/horosafe"
	"github.com/hazyhaar/ezpage/shield"
)

const version = "0.1.0"

type options struct {
	configPath string
	dbPath     string
	addr       string
	pageID     string
	apply      string
	render     bool
	outline    bool
	stats      bool
	export     string
	mcpMode    string
}

// serverConfig holds the daemon settings read from the same YAML file as
// editor.Config.
type serverConfig struct {
	Addr string        `yaml:"addr"`
	HTTP shield.Config `yaml:"http"`
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to ezpage.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database (overrides config)")
	flag.StringVar(&o.addr, "addr", "", "HTTP listen address (default :8090)")
	flag.StringVar(&o.pageID, "page", "home", "page id for one-shot modes")
	flag.StringVar(&o.apply, "apply", "", "apply envelopes from file (- for stdin) and exit")
	flag.BoolVar(&o.render, "render", false, "print the HTML preview and exit")
	flag.BoolVar(&o.outline, "outline", false, "print the Markdown outline and exit")
	flag.BoolVar(&o.stats, "stats", false, "print stats and exit")
	flag.StringVar(&o.export, "export", "", "write every stored page as HTML into this directory and exit")
	flag.StringVar(&o.mcpMode, "mcp", "http", "MCP transport: http (mounted at /mcp), stdio, off")
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

	if err := run(ctx, logger, o); err != nil {
		logger.Error("ezpage: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, srvCfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	ed, err := editor.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		if err := ed.Close(); err != nil {
			logger.Error("ezpage: close", "error", err)
		}
	}()

	switch {
	case o.apply != "":
		return applyFile(ctx, ed, o.pageID, o.apply, int64(cfg.Stream.MaxBytes))
	case o.render, o.outline:
		return printPage(ctx, ed, o.pageID, o.outline)
	case o.stats:
		st, err := ed.Stats(ctx, o.pageID)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		return printJSON(st)
	case o.export != "":
		return export(ctx, ed, o.export, logger)
	}

	ed.Start(ctx)
	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "ezpage", Version: version}, nil)
	ed.RegisterMCP(mcpSrv)

	if o.mcpMode == "stdio" {
		logger.Info("ezpage: MCP on stdio", "db", cfg.DBPath)
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	}

	return serve(ctx, logger, ed, mcpSrv, srvCfg, o.mcpMode == "http")
}

func serve(ctx context.Context, logger *slog.Logger, ed *editor.Editor, mcpSrv *mcp.Server, cfg serverConfig, withMCP bool) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.Stack(logger, cfg.HTTP) {
		r.Use(mw)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	ed.RegisterHTTP(r)
	if withMCP {
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ezpage: listening", "addr", cfg.Addr, "mcp", withMCP)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("ezpage: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func applyFile(ctx context.Context, ed *editor.Editor, pageID, path string, maxBytes int64) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	text, err := horosafe.LimitedReadAll(r, maxBytes)
	if err != nil {
		return fmt.Errorf("read actions: %w", err)
	}

	s, err := ed.Open(ctx, pageID)
	if err != nil {
		return err
	}
	report, applyErr := s.ApplyText(ctx, string(text))
	if err := printJSON(report); err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return applyErr
}

func printPage(ctx context.Context, ed *editor.Editor, pageID string, outline bool) error {
	doc, err := ed.Document(ctx, pageID)
	if err != nil {
		return err
	}
	var out string
	if outline {
		out = ed.Renderer().Outline(doc)
	} else if out, err = ed.Renderer().Page(doc, pageID); err != nil {
		return err
	}
	_, err = io.WriteString(os.Stdout, out)
	return err
}

func export(ctx context.Context, ed *editor.Editor, dir string, logger *slog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	pages, err := ed.Pages(ctx, 10_000)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		path, err := horosafe.SafePath(dir, p.ID+".html")
		if err != nil {
			logger.Warn("ezpage: export skipped", "page_id", p.ID, "error", err)
			continue
		}
		s, err := ed.Open(ctx, p.ID)
		if err != nil {
			logger.Warn("ezpage: export skipped", "page_id", p.ID, "error", err)
			continue
		}
		html, err := ed.Renderer().Page(s.Document(), p.ID)
		if err != nil {
			return fmt.Errorf("render %s: %w", p.ID, err)
		}
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			return err
		}
		logger.Info("ezpage: exported", "page_id", p.ID, "path", path)
	}
	return nil
}

func resolveConfig(o options) (*editor.Config, serverConfig, error) {
	cfg := &editor.Config{}
	var srv serverConfig
	if o.configPath != "" {
		var err error
		if cfg, err = editor.LoadConfigFile(o.configPath); err != nil {
			return nil, srv, fmt.Errorf("config: %w", err)
		}
		data, err := os.ReadFile(o.configPath)
		if err != nil {
			return nil, srv, err
		}
		if err := yaml.Unmarshal(data, &srv); err != nil {
			return nil, srv, fmt.Errorf("config: %w", err)
		}
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.addr != "" {
		srv.Addr = o.addr
	}
	if srv.Addr == "" {
		srv.Addr = ":8090"
	}
	return cfg, srv, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
