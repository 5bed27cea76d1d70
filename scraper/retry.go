package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/storefront-tools/shopcrawl/config"
)

// retryManager re-issues failed requests with exponential backoff,
// preserving the colly context so the crawl metadata survives the
// retry. It belongs to the transport layer: the state machine never
// sees a retried request as anything but a fresh response.
type retryManager struct {
	collector *colly.Collector
	cfg       *config.Config
	metrics   *Metrics
	ctx       context.Context

	mu           sync.Mutex
	cond         *sync.Cond
	attempts     map[string]int
	pending      map[string]*pendingRetry
	outstanding  int
	totalRetries int
	stopped      bool
}

type pendingRetry struct {
	timer *time.Timer
	cctx  *colly.Context
}

func newRetryManager(collector *colly.Collector, cfg *config.Config, metrics *Metrics) *retryManager {
	rm := &retryManager{
		collector: collector,
		cfg:       cfg,
		metrics:   metrics,
		ctx:       context.Background(),
		attempts:  make(map[string]int),
		pending:   make(map[string]*pendingRetry),
	}
	rm.cond = sync.NewCond(&rm.mu)
	return rm
}

// Schedule queues a retry for url unless the attempt budget is spent.
func (rm *retryManager) Schedule(url string, cctx *colly.Context) bool {
	if rm.cfg.MaxRetries == 0 || url == "" {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return false
	}
	if rm.ctx != nil && rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	if prev, ok := rm.pending[url]; ok {
		if prev.timer.Stop() {
			rm.outstanding--
		}
		delete(rm.pending, url)
	}

	rm.outstanding++
	entry := &pendingRetry{cctx: cctx}
	entry.timer = time.AfterFunc(rm.backoff(attempt), func() {
		rm.fire(url, entry)
	})
	rm.pending[url] = entry
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) fire(url string, entry *pendingRetry) {
	rm.mu.Lock()
	if rm.stopped {
		rm.settleLocked()
		rm.mu.Unlock()
		return
	}
	ctx := rm.ctx
	delete(rm.pending, url)
	rm.mu.Unlock()

	if ctx == nil || ctx.Err() == nil {
		cctx := entry.cctx
		if cctx == nil {
			cctx = colly.NewContext()
		}
		if err := rm.collector.Request("GET", url, nil, cctx, nil); err != nil {
			slog.Debug("retry visit failed", slog.String("url", url), slog.Any("error", err))
		}
	}

	// Settle only after the re-issued request is registered with the
	// collector, so a Drain followed by Wait covers it.
	rm.mu.Lock()
	rm.settleLocked()
	rm.mu.Unlock()
}

func (rm *retryManager) settleLocked() {
	rm.outstanding--
	if rm.outstanding <= 0 {
		rm.cond.Broadcast()
	}
}

// Drain blocks until every scheduled retry has been handed back to the
// collector, reporting whether any were outstanding when called.
func (rm *retryManager) Drain() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.outstanding == 0 {
		return false
	}
	for rm.outstanding > 0 && !rm.stopped {
		rm.cond.Wait()
	}
	return true
}

// Stop cancels all pending retries.
func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}
	rm.stopped = true
	for url, entry := range rm.pending {
		if entry.timer.Stop() {
			rm.settleLocked()
		}
		delete(rm.pending, url)
	}
	rm.cond.Broadcast()
}

// TotalRetries reports the number of retries scheduled over the run.
func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

// SetContext installs the run context consulted before firing retries.
func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	rm.ctx = ctx
}
