// Package pipeline routes normalized products to the per-shop output
// sink, bounding duplicate writes and attributing write outcomes back
// to the per-shop counters.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/storefront-tools/shopcrawl/models"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("pipeline: closed")

// OutputWriter is the product sink. Write must be safe for concurrent
// use; a write failure applies to that record only.
type OutputWriter interface {
	Write(p *models.Product) error
	Close() error
}

// ResultFunc receives each write outcome so the caller can attribute
// saved/failed counts to the owning shop.
type ResultFunc func(shop string, err error)

// Pipeline fans normalized products out to worker goroutines that feed
// the sink. A write failure is recorded and skipped, never fatal: the
// crawl keeps going.
type Pipeline struct {
	writer   OutputWriter
	onResult ResultFunc
	ch       chan *models.Product
	dedupe   *lru.Cache[string, struct{}]

	wg sync.WaitGroup

	metrics pipelineMetrics

	mu     sync.Mutex
	closed bool

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a pipeline. dedupeMax bounds the downstream duplicate
// cache; the authoritative dedupe lives in the per-shop crawl state,
// this one only protects the sink across strategy restarts.
func New(writer OutputWriter, onResult ResultFunc, bufferSize, dedupeMax int) (*Pipeline, error) {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if dedupeMax <= 0 {
		dedupeMax = 100000
	}
	cache, err := lru.New[string, struct{}](dedupeMax)
	if err != nil {
		return nil, fmt.Errorf("build dedupe cache: %w", err)
	}
	if onResult == nil {
		onResult = func(string, error) {}
	}
	return &Pipeline{
		writer:   writer,
		onResult: onResult,
		ch:       make(chan *models.Product, bufferSize),
		dedupe:   cache,
		shutdown: make(chan struct{}),
	}, nil
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues one product for writing.
func (p *Pipeline) Process(product *models.Product) error {
	if product == nil {
		return nil
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPipelineClosed
	}

	return p.enqueue(product)
}

// Close waits for workers to drain and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.ch)
	})

	p.wg.Wait()
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for product := range p.ch {
		key := fmt.Sprintf("%s/%d", product.Shop, product.ProductID)
		if _, dup := p.dedupe.Get(key); dup {
			p.metrics.incDuplicate()
			continue
		}
		p.dedupe.Add(key, struct{}{})

		if err := p.writer.Write(product); err != nil {
			p.metrics.incFailed()
			slog.Error("sink write failed",
				slog.String("shop", product.Shop),
				slog.Int64("product_id", product.ProductID),
				slog.Any("error", err),
			)
			p.onResult(product.Shop, err)
			continue
		}
		p.metrics.incProcessed()
		p.onResult(product.Shop, nil)
	}
}

func (p *Pipeline) enqueue(product *models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.ch <- product:
		return nil
	}
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type pipelineMetrics struct {
	mu         sync.Mutex
	processed  int64
	failed     int64
	duplicates int64
}

func (m *pipelineMetrics) incProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *pipelineMetrics) incFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *pipelineMetrics) incDuplicate() {
	m.mu.Lock()
	m.duplicates++
	m.mu.Unlock()
}

func (m *pipelineMetrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"processed_products": m.processed,
		"write_failures":     m.failed,
		"duplicates_dropped": m.duplicates,
	}
}
