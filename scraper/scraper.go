// Package scraper wires the per-shop crawl state machine to the colly
// fetch substrate: it seeds the probe and listing requests, dispatches
// responses into crawl.Step, and routes emitted records through the
// normalizer into the pipeline.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/storefront-tools/shopcrawl/config"
	"github.com/storefront-tools/shopcrawl/crawl"
	"github.com/storefront-tools/shopcrawl/currency"
	"github.com/storefront-tools/shopcrawl/models"
	"github.com/storefront-tools/shopcrawl/normalize"
	"github.com/storefront-tools/shopcrawl/pipeline"
)

const requestKey = "crawl_request"

// Scraper drives one crawl run across the configured shops.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	store     *crawl.Store
	filter    normalize.Filter
	Metrics   *Metrics

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int

	handlersOnce sync.Once
}

// NewScraper builds a scraper configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	if len(cfg.Shops) == 0 {
		return nil, fmt.Errorf("no shops configured")
	}

	domains := make([]string, 0, len(cfg.Shops))
	for _, raw := range cfg.Shops {
		shop := crawl.NormalizeShop(raw)
		if shop == "" {
			return nil, fmt.Errorf("invalid shop entry %q", raw)
		}
		host := shop
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		domains = append(domains, host)
	}

	// Revisits must stay allowed: every strategy/page URL is distinct,
	// and retried URLs would otherwise be refused as already visited.
	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(domains...),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		store:        crawl.NewStore(),
		filter:       normalize.NewFilter(cfg.FilterTag, cfg.FilterProductType),
		Metrics:      NewMetrics(),
		errorsByType: make(map[string]int),
	}
	s.retry = newRetryManager(collector, cfg, s.Metrics)
	return s, nil
}

// Run seeds every shop's probe and first listing page, then blocks
// until all in-flight and derived requests settle.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.retry.SetContext(ctx)
	s.configureHandlers(ctx, p)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.collector.Wait()
			s.retry.Stop()
		case <-done:
		}
	}()

	opts := crawl.Options{
		Collection:     s.cfg.Collection,
		PageSize:       s.cfg.PageSize,
		MaxPages:       s.cfg.MaxPages,
		EmptyPageLimit: s.cfg.EmptyPageLimit,
	}
	for _, raw := range s.cfg.Shops {
		shop := crawl.NormalizeShop(raw)
		state := s.store.Create(shop, opts)
		s.issue(crawl.ProbeRequest(shop))
		s.issue(state.InitialRequest())
	}

	s.collector.Wait()
	// Scheduled retries fire after the collector settles; keep waiting
	// until no retry is outstanding and the requests it re-issued have
	// settled too.
	for s.retry.Drain() {
		s.collector.Wait()
	}
	s.retry.Stop()

	result := &models.CrawlResult{
		StartTime:    start,
		EndTime:      time.Now(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		RetryCount:   s.retry.TotalRetries(),
		FailedURLs:   s.snapshotFailedURLs(),
		ErrorsByType: s.snapshotErrors(),
		Summaries:    s.store.Summaries(),
	}
	for _, summary := range result.Summaries {
		result.PageCount += summary.PagesCrawled
	}
	return result, nil
}

// RecordWrite attributes one sink write outcome to its shop. Wired as
// the pipeline's result callback.
func (s *Scraper) RecordWrite(shop string, err error) {
	if state, ok := s.store.Get(shop); ok {
		state.RecordWrite(err)
	}
}

// Header produces the currency header record for a shop's output
// stream. The TLD heuristic runs here as the last resort when nothing
// else resolved by the time the first record is written.
func (s *Scraper) Header(shop string) models.CurrencyInfo {
	now := time.Now()
	state, ok := s.store.Get(shop)
	if !ok {
		return models.NewCurrencyInfo(shop, "", "", now)
	}
	code, source := state.Currency()
	if code == "" {
		if det, ok := currency.FromTLD(shop); ok && state.SetCurrency(det.Code, det.Source) {
			s.Metrics.IncCurrencyDetection(det.Source)
			code, source = state.Currency()
		}
	}
	return models.NewCurrencyInfo(shop, code, source, now)
}

func (s *Scraper) configureHandlers(ctx context.Context, p *pipeline.Pipeline) {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&s.requestCount, 1)
			if current%50 == 0 {
				slog.Debug("crawl progress",
					slog.Int64("requests", current),
					slog.String("url", r.URL.String()),
				)
			}
		})

		s.collector.OnResponse(func(r *colly.Response) {
			if s.Metrics != nil {
				if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
					s.Metrics.ObserveDuration(time.Since(start))
				}
			}

			req, ok := r.Ctx.GetAny(requestKey).(crawl.Request)
			if !ok {
				return
			}
			state, ok := s.store.Get(req.Shop)
			if !ok {
				return
			}

			switch req.Kind {
			case crawl.KindProbe:
				s.handleProbe(state, r.Body)
			case crawl.KindListing:
				s.Metrics.IncPages()
				res := state.Step(req, crawl.Response{StatusCode: r.StatusCode, Body: r.Body})
				// The payload stages of the currency cascade only trust
				// bodies accepted as structured catalogs; a maintenance
				// page with a stray symbol must not sticky-set a code.
				if res.CatalogBody {
					s.detectPayloadCurrency(state, r.Body)
				}
				s.applyStep(ctx, state, res, p)
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			url := ""
			var cctx *colly.Context
			if r != nil {
				statusCode = r.StatusCode
				cctx = r.Ctx
				if r.Request != nil && r.Request.URL != nil {
					url = r.Request.URL.String()
				}
			}

			// 404/406 on a listing page is a pagination signature, not
			// a transport failure: it drives strategy fallback.
			if cctx != nil && (statusCode == 404 || statusCode == 406) {
				if req, ok := cctx.GetAny(requestKey).(crawl.Request); ok && req.Kind == crawl.KindListing {
					if state, ok := s.store.Get(req.Shop); ok {
						s.Metrics.IncPages()
						res := state.Step(req, crawl.Response{StatusCode: statusCode})
						s.applyStep(ctx, state, res, p)
						return
					}
				}
			}

			atomic.AddInt64(&s.errorCount, 1)
			category := classify(err, statusCode)
			s.mu.Lock()
			s.errorsByType[string(category)]++
			s.mu.Unlock()
			s.Metrics.IncError(category)

			slog.Error("request error",
				slog.String("url", url),
				slog.String("category", string(category)),
				slog.Any("error", err),
			)

			if !transient(category) || !s.retry.Schedule(url, cctx) {
				s.mu.Lock()
				s.failedURLs = append(s.failedURLs, url)
				s.mu.Unlock()
			}
		})
	})
}

// handleProbe runs the HTML stage of the currency cascade against the
// dedicated probe page.
func (s *Scraper) handleProbe(state *crawl.State, body []byte) {
	if code, _ := state.Currency(); code != "" {
		return
	}
	det, ok := currency.FromHTML(string(body))
	if !ok {
		return
	}
	if state.SetCurrency(det.Code, det.Source) {
		s.Metrics.IncCurrencyDetection(det.Source)
		slog.Info("currency detected",
			slog.String("shop", state.Shop()),
			slog.String("currency", det.Code),
			slog.String("source", det.Source),
		)
	}
}

// detectPayloadCurrency runs the structured-payload stages of the
// cascade against a catalog response while the shop has no code yet.
func (s *Scraper) detectPayloadCurrency(state *crawl.State, body []byte) {
	if code, _ := state.Currency(); code != "" {
		return
	}
	det, ok := currency.FromPayload(body)
	if !ok {
		return
	}
	if state.SetCurrency(det.Code, det.Source) {
		s.Metrics.IncCurrencyDetection(det.Source)
		slog.Info("currency detected",
			slog.String("shop", state.Shop()),
			slog.String("currency", det.Code),
			slog.String("source", det.Source),
		)
	}
}

// applyStep routes a transition's emissions through the filter,
// dedupe, and normalizer into the pipeline, then hands the follow-up
// fetches back to the collector.
func (s *Scraper) applyStep(ctx context.Context, state *crawl.State, res crawl.StepResult, p *pipeline.Pipeline) {
	if res.Switched {
		s.Metrics.IncStrategySwitch(res.SwitchedFrom.String(), res.SwitchedTo.String())
		slog.Info("pagination strategy switch",
			slog.String("shop", state.Shop()),
			slog.String("from", res.SwitchedFrom.String()),
			slog.String("to", res.SwitchedTo.String()),
		)
	}
	if res.Terminal {
		s.logTerminal(state, res.Reason)
	}

	now := time.Now().UTC()
	for _, raw := range res.Products {
		if raw.ID == 0 {
			continue
		}
		if !s.filter.Allows(raw) {
			continue
		}
		if !state.EmitIfNew(raw.ID) {
			continue
		}
		s.Metrics.IncItems()

		code, source := state.Currency()
		product := normalize.Product(state.Shop(), raw, code, source, now)
		if err := p.Process(product); err != nil && err != pipeline.ErrPipelineClosed {
			slog.Error("pipeline process error",
				slog.String("shop", state.Shop()),
				slog.Any("error", err),
			)
		}
	}

	for _, next := range res.Next {
		if ctx.Err() != nil {
			return
		}
		s.issue(next)
	}
}

func (s *Scraper) logTerminal(state *crawl.State, reason crawl.TerminalReason) {
	switch reason {
	case crawl.ReasonMaxPages:
		slog.Warn("shop crawl stopped at page ceiling", slog.String("shop", state.Shop()))
	case crawl.ReasonStrategiesExhausted:
		slog.Warn("all pagination strategies failed", slog.String("shop", state.Shop()))
	default:
		slog.Info("shop crawl finished",
			slog.String("shop", state.Shop()),
			slog.String("reason", reason.String()),
		)
	}
}

// issue hands a fetch descriptor to the collector, fire and forget.
func (s *Scraper) issue(req crawl.Request) {
	cctx := colly.NewContext()
	cctx.Put(requestKey, req)

	kind := "listing"
	if req.Kind == crawl.KindProbe {
		kind = "probe"
	}
	s.Metrics.IncRequest(kind)

	if err := s.collector.Request("GET", req.URL, nil, cctx, nil); err != nil {
		slog.Debug("request refused",
			slog.String("url", req.URL),
			slog.Any("error", err),
		)
	}
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
