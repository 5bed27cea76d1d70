package crawl

import (
	"sync"

	"github.com/storefront-tools/shopcrawl/models"
)

// Options fixes the per-shop crawl parameters at state creation.
type Options struct {
	Collection     string
	PageSize       int
	MaxPages       int
	EmptyPageLimit int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 250
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 500
	}
	if o.EmptyPageLimit <= 0 {
		o.EmptyPageLimit = 3
	}
	return o
}

// State is one shop's crawl state. It is created at crawl start and
// mutated only through its own methods; the mutex serializes the probe
// and listing callbacks, which may land concurrently.
type State struct {
	mu sync.Mutex

	shop     string
	opts     Options
	strategy Strategy
	page     int
	offset   int

	seen             map[int64]struct{}
	consecutiveEmpty int

	pagesCrawled int
	itemsEmitted int
	itemsSaved   int
	itemsFailed  int

	currencyCode   string
	currencySource string

	done   bool
	failed bool
}

// NewState builds the initial state for a shop. shop must already be
// normalized.
func NewState(shop string, opts Options) *State {
	return &State{
		shop:     shop,
		opts:     opts.withDefaults(),
		strategy: StrategyStandard,
		page:     1,
		seen:     make(map[int64]struct{}),
	}
}

// Shop returns the identity key.
func (s *State) Shop() string { return s.shop }

// InitialRequest builds the first listing fetch for the shop.
func (s *State) InitialRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listingRequestLocked()
}

func (s *State) listingRequestLocked() Request {
	return Request{
		Shop:     s.shop,
		URL:      listingURL(s.shop, s.opts.Collection, s.strategy, s.page, s.offset, s.opts.PageSize),
		Kind:     KindListing,
		Strategy: s.strategy,
		Page:     s.page,
		Offset:   s.offset,
	}
}

// EmitIfNew records a product id the first time it is seen for the
// shop and reports whether the caller should emit it. The seen set
// only grows; a failed downstream write never removes an id.
func (s *State) EmitIfNew(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.itemsEmitted++
	return true
}

// SeenCount reports the size of the dedupe set.
func (s *State) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// RecordWrite tallies one output-sink write outcome.
func (s *State) RecordWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.itemsFailed++
		return
	}
	s.itemsSaved++
}

// SetCurrency stores a detected code unless one is already set; the
// first successful detector wins and is sticky. Returns whether this
// call set it.
func (s *State) SetCurrency(code, source string) bool {
	if code == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currencyCode != "" {
		return false
	}
	s.currencyCode = code
	s.currencySource = source
	return true
}

// Currency returns the sticky code and its source tag, both empty when
// nothing has been detected.
func (s *State) Currency() (code, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currencyCode, s.currencySource
}

// Done reports whether the shop's crawl reached a terminal condition.
func (s *State) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Failed reports whether the shop terminated with all pagination
// strategies exhausted.
func (s *State) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Summary snapshots the counters for the final report.
func (s *State) Summary() models.ShopSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ShopSummary{
		Shop:         s.shop,
		Items:        s.itemsEmitted,
		Saved:        s.itemsSaved,
		Failed:       s.itemsFailed,
		PagesCrawled: s.pagesCrawled,
	}
}

// Store holds the per-shop states for a run, keyed by normalized shop.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
	order  []string
}

// NewStore builds an empty state store.
func NewStore() *Store {
	return &Store{states: make(map[string]*State)}
}

// Create registers a state for a shop, returning the existing one when
// the shop was already registered.
func (st *Store) Create(shop string, opts Options) *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.states[shop]; ok {
		return s
	}
	s := NewState(shop, opts)
	st.states[shop] = s
	st.order = append(st.order, shop)
	return s
}

// Get looks up a shop's state.
func (st *Store) Get(shop string) (*State, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.states[shop]
	return s, ok
}

// Summaries snapshots every shop's counters in registration order.
func (st *Store) Summaries() []models.ShopSummary {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]models.ShopSummary, 0, len(st.order))
	for _, shop := range st.order {
		out = append(out, st.states[shop].Summary())
	}
	return out
}
