// Command consultaflow runs the retrieval router: one-shot query mode, an
// interactive conversation mode, and a batch evaluation mode.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/config"
	"github.com/gpsalud/consultaflow/entity"
	prom "github.com/gpsalud/consultaflow/internal/metrics"
	"github.com/gpsalud/consultaflow/internal/store"
	"github.com/gpsalud/consultaflow/metrics"
	"github.com/gpsalud/consultaflow/providers"
	"github.com/gpsalud/consultaflow/retrieval"
	"github.com/gpsalud/consultaflow/rewrite"
	"github.com/gpsalud/consultaflow/router"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the scenario config YAML")
		query      = flag.String("query", "", "process a single query and exit")
		evalPath   = flag.String("eval", "", "run a YAML question set and print aggregate stats")
		workers    = flag.Int("workers", 4, "concurrent workers in eval mode")
		debug      = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	logger := newLogger(*debug)
	defer func() { _ = logger.Sync() }()

	if err := run(logger, *configPath, *query, *evalPath, *workers); err != nil {
		logger.Fatal("consultaflow failed", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func run(logger *zap.Logger, configPath, query, evalPath string, workers int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, cleanup, err := buildRouter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	switch {
	case query != "":
		return runOnce(ctx, r, query)
	case evalPath != "":
		return runEval(ctx, r, evalPath, workers, logger)
	default:
		return runInteractive(ctx, r, cfg.Mode)
	}
}

// buildRouter wires the full pipeline from config. The returned cleanup
// closes the metrics store.
func buildRouter(ctx context.Context, cfg config.Config, logger *zap.Logger) (*router.Router, func(), error) {
	cleanup := func() {}

	dict, err := entity.LoadDictionary(cfg.Data.DictionaryPath)
	if err != nil {
		return nil, cleanup, err
	}
	detector := entity.NewDetector(dict, cfg.Detection, logger)

	table, err := loadSynonyms(cfg.Data.SynonymsPath, logger)
	if err != nil {
		return nil, cleanup, err
	}
	rewriter := rewrite.NewRewriter(table, logger)

	var embedder retrieval.Embedder = retrieval.NewOllamaEmbedder(cfg.Embedding, logger)
	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		embedder = retrieval.NewCachedEmbedder(embedder, client, retrieval.CachedEmbedderConfig{
			Model: cfg.Embedding.Model,
			TTL:   cfg.Cache.TTL,
		}, logger)
	}

	index := retrieval.NewMemoryIndex(logger)
	loader := retrieval.NewLoader(embedder, index, 0, logger)
	if cfg.Data.ChunksDir != "" {
		n, err := loader.LoadDir(ctx, cfg.Data.ChunksDir)
		if err != nil {
			return nil, cleanup, err
		}
		logger.Info("index ready", zap.Int("chunks", n))
	}
	retriever := retrieval.NewRetriever(embedder, index, logger)

	provider, err := providers.New(cfg.Provider, logger)
	if err != nil {
		return nil, cleanup, err
	}
	if err := provider.HealthCheck(ctx); err != nil {
		logger.Warn("provider health check failed, continuing",
			zap.String("provider", provider.Name()), zap.Error(err))
	}

	var publishers []metrics.Publisher
	if cfg.Metrics.DBPath != "" {
		st, err := store.Open(cfg.Metrics.DBPath, cfg.Metrics.Run, logger)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = st.Close() }
		publishers = append(publishers, st)
	}
	if cfg.Metrics.ListenAddr != "" {
		reg := prometheus.NewRegistry()
		publishers = append(publishers, prom.NewCollector(reg))
		go serveMetrics(cfg.Metrics.ListenAddr, reg, logger)
	}

	recorder := metrics.NewRecorder(metrics.RecorderConfig{
		Scenario: cfg.Scenario,
		Mode:     cfg.Mode,
		Provider: cfg.Provider.Provider,
		Model:    cfg.Provider.Model,
	}, publishers, logger)
	counter := metrics.NewCounter(cfg.Provider.Model, logger)

	r := router.New(cfg.Router, detector, rewriter, retriever, provider, recorder, counter, logger)
	return r, cleanup, nil
}

// loadSynonyms falls back to the built-in table when no file is configured
// or the configured file does not exist.
func loadSynonyms(path string, logger *zap.Logger) (*rewrite.Table, error) {
	if path == "" {
		return rewrite.DefaultTable(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("synonym file missing, using built-in table", zap.String("path", path))
		return rewrite.DefaultTable(), nil
	}
	return rewrite.LoadTable(path)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics endpoint failed", zap.Error(err))
	}
}

func runOnce(ctx context.Context, r *router.Router, query string) error {
	res, err := r.Process(ctx, query)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func runInteractive(ctx context.Context, r *router.Router, mode string) error {
	sessionID := router.NewSessionID()
	fmt.Println("consultaflow listo. Escribí tu consulta (salir para terminar).")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "salir" || line == "exit" {
			return nil
		}
		if line == "/reset" {
			r.Reset(sessionID)
			fmt.Println("historial borrado")
			continue
		}

		var res *router.Result
		var err error
		if mode == config.ModeConversacion {
			res, err = r.ProcessSession(ctx, sessionID, line)
		} else {
			res, err = r.Process(ctx, line)
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		printResult(res)
	}
}

func printResult(res *router.Result) {
	fmt.Println(res.Response)
	if res.Metrics == nil {
		return
	}
	m := res.Metrics
	if res.RAGExecuted {
		fmt.Printf("  [%s | %d chunks | top %.2f | %.0f ms]\n",
			m.Entity, m.ChunksCount, m.TopSimilarity, m.TotalMS)
	} else {
		fmt.Printf("  [sin entidad | %.0f ms]\n", m.TotalMS)
	}
}
