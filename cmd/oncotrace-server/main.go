// Command oncotrace-server serves the analysis engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oncotrace/oncotrace/internal/config"
	"github.com/oncotrace/oncotrace/internal/engine"
	"github.com/oncotrace/oncotrace/internal/extract"
	"github.com/oncotrace/oncotrace/internal/httpapi"
	"github.com/oncotrace/oncotrace/internal/store"
	"github.com/oncotrace/oncotrace/internal/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		addr       = flag.String("addr", "", "listen address (overrides config)")
	)
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := config.SetupLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, "oncotrace-server", cfg.Telemetry.Endpoint)
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		defer shutdown(context.Background())
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer st.Close()
	}

	extractor, err := buildExtractor(cfg, logger)
	if err != nil {
		log.Fatalf("extractor: %v", err)
	}

	eng := engine.New(cfg.EngineSettings(), logger)
	srv := httpapi.NewServer(eng, extractor, st, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func buildExtractor(cfg *config.Config, logger *slog.Logger) (extract.Extractor, error) {
	switch strings.ToLower(cfg.Extractor.Provider) {
	case "regex", "":
		return &extract.RegexExtractor{Log: logger}, nil
	default:
		caller, err := extract.NewCaller(cfg.Extractor.Provider, cfg.Extractor.APIKey, cfg.Extractor.Model, cfg.Extractor.BaseURL)
		if err != nil {
			return nil, err
		}
		return extract.NewLLMExtractor(caller, logger), nil
	}
}
