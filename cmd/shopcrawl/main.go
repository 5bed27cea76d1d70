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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/storefront-tools/shopcrawl/config"
	"github.com/storefront-tools/shopcrawl/models"
	"github.com/storefront-tools/shopcrawl/pipeline"
	"github.com/storefront-tools/shopcrawl/scraper"
)

func main() {
	// .env provides the configuration-file tier of the shop list
	// precedence; missing file is fine.
	_ = godotenv.Load()

	defaultCfg := config.DefaultConfig()
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("SHOPCRAWL_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SHOPCRAWL_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	parallelDefault := defaultCfg.Parallelism
	if value, ok, err := config.EnvInt("SHOPCRAWL_PARALLEL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SHOPCRAWL_PARALLEL: %v\n", err)
		os.Exit(1)
	} else if ok {
		parallelDefault = value
	}
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("SHOPCRAWL_OUTPUT_DIR"); ok {
		outputDefault = value
	}
	metricsDefault := ""
	if value, ok := config.EnvString("SHOPCRAWL_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	shopsFlag := flag.String("shops", "", "Comma-separated shop domains (falls back to SHOPS env)")
	collection := flag.String("collection", "", "Restrict the crawl to one collection handle")
	filterTag := flag.String("tag", "", "Keep only products carrying this tag")
	filterType := flag.String("product-type", "", "Keep only products of this type")
	maxPages := flag.Int("pages", pagesDefault, "Maximum catalog pages per shop")
	parallelism := flag.Int("parallel", parallelDefault, "Number of concurrent requests")
	delayMs := flag.Int("delay", int(defaultCfg.Delay/time.Millisecond), "Delay between requests (milliseconds)")
	randomDelayMs := flag.Int("random-delay", int(defaultCfg.RandomDelay/time.Millisecond), "Random jitter added to delay (milliseconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per URL")
	retryBackoffMs := flag.Int("retry-backoff", 200, "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", 10000, "Maximum retry backoff (milliseconds)")
	respectRobots := flag.Bool("respect-robots", defaultCfg.RespectRobotsTxt, "Respect robots.txt directives")
	outputDir := flag.String("output-dir", outputDefault, "Directory for per-shop product streams")
	reportFile := flag.String("report", defaultCfg.ReportFile, "Path of the plain-text run report")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	shopsRaw := *shopsFlag
	if shopsRaw == "" {
		shopsRaw, _ = config.EnvString("SHOPS")
	}

	cfg := defaultCfg
	cfg.Shops = config.SplitShops(shopsRaw)
	cfg.Collection = *collection
	cfg.FilterTag = *filterTag
	cfg.FilterProductType = *filterType
	cfg.MaxPages = *maxPages
	cfg.Parallelism = *parallelism
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.RandomDelay = time.Duration(*randomDelayMs) * time.Millisecond
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.RespectRobotsTxt = *respectRobots
	cfg.OutputDir = *outputDir
	cfg.ReportFile = *reportFile
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting crawl",
		slog.Int("shops", len(cfg.Shops)),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("workers", cfg.Parallelism),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := pipeline.NewShopFileWriter(cfg.OutputDir, s.Header)
	if err != nil {
		slog.Error("creating output sink", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close output sink", slog.Any("error", err))
		}
	}()

	p, err := pipeline.New(writer, s.RecordWrite, cfg.PipelineBufferSize, cfg.DedupeMaxSize)
	if err != nil {
		slog.Error("creating pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	p.Start(cfg.Parallelism)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, err := s.Run(ctx, p)
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Shops that emitted nothing still get a stream carrying the
	// currency header.
	for _, summary := range result.Summaries {
		if err := writer.EnsureHeader(summary.Shop); err != nil {
			slog.Error("write header record",
				slog.String("shop", summary.Shop),
				slog.Any("error", err),
			)
		}
	}

	if err := pipeline.WriteReport(cfg.ReportFile, result.Summaries); err != nil {
		slog.Error("writing report", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.ReportFile)
}

func printSummary(result *models.CrawlResult, reportFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")
	for _, s := range result.Summaries {
		fmt.Printf("  %s\n", s.Line())
	}
	fmt.Printf("  Requests:   %d\n", result.RequestCount)
	fmt.Printf("  Pages:      %d\n", result.PageCount)
	fmt.Printf("  Errors:     %d\n", result.ErrorCount)
	fmt.Printf("  Retries:    %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types: %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:   %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Printf("  Report:     %s\n", reportFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
