package crawl

import (
	"encoding/json"
	"strings"

	"github.com/storefront-tools/shopcrawl/models"
)

// Response is the slice of an HTTP response the state machine needs.
type Response struct {
	StatusCode int
	Body       []byte
}

// TerminalReason explains why a shop's crawl stopped.
type TerminalReason int

const (
	// ReasonNone means the crawl continues.
	ReasonNone TerminalReason = iota
	// ReasonCatalogExhausted means three consecutive empty pages were
	// seen; the catalog is done (success).
	ReasonCatalogExhausted
	// ReasonShortPage means the offset strategy returned fewer records
	// than a full page (success).
	ReasonShortPage
	// ReasonMaxPages means the hard page ceiling was hit (safety
	// cutoff, logged as a warning).
	ReasonMaxPages
	// ReasonStrategiesExhausted means every pagination strategy was
	// rejected; the shop is reported as failed.
	ReasonStrategiesExhausted
)

func (r TerminalReason) String() string {
	switch r {
	case ReasonCatalogExhausted:
		return "catalog_exhausted"
	case ReasonShortPage:
		return "short_page"
	case ReasonMaxPages:
		return "max_pages"
	case ReasonStrategiesExhausted:
		return "strategies_exhausted"
	default:
		return "none"
	}
}

// StepResult is the outcome of feeding one response through the state
// machine: records to normalize, follow-up fetches, and terminal info.
type StepResult struct {
	Products []models.RawProduct
	Next     []Request
	Terminal bool
	Reason   TerminalReason

	Switched     bool
	SwitchedFrom Strategy
	SwitchedTo   Strategy

	// CatalogBody reports that the response body was accepted as a
	// structured catalog document (possibly empty). Bodies that failed
	// to parse or turned out to be markup never set it.
	CatalogBody bool
}

// Step feeds one listing response through the shop's state machine. It
// decides whether to emit records, advance the cursor, switch
// strategy, or terminate, and returns the follow-up requests to hand
// back to the transport. Mutation is serialized on the state's mutex;
// the transport never needs to await anything.
func (s *State) Step(req Request, resp Response) StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return StepResult{}
	}
	// Stale responses from a strategy that was already abandoned must
	// not advance the current one.
	if req.Strategy != s.strategy {
		return StepResult{}
	}

	if req.Page > s.opts.MaxPages {
		return s.terminateLocked(ReasonMaxPages)
	}
	s.pagesCrawled++

	if resp.StatusCode != 200 {
		if resp.StatusCode == 404 || resp.StatusCode == 406 {
			return s.fallbackLocked()
		}
		// Other statuses are dropped here; retries, if any, belong to
		// the transport substrate.
		return StepResult{}
	}

	var catalog models.Catalog
	if err := json.Unmarshal(resp.Body, &catalog); err != nil {
		return s.fallbackLocked()
	}
	if len(catalog.Products) == 0 && looksLikeMarkup(resp.Body) {
		return s.fallbackLocked()
	}

	var res StepResult
	if len(catalog.Products) == 0 {
		s.consecutiveEmpty++
		if s.consecutiveEmpty >= s.opts.EmptyPageLimit {
			res = s.terminateLocked(ReasonCatalogExhausted)
		} else {
			res = s.advanceLocked(0, nil)
		}
	} else {
		s.consecutiveEmpty = 0
		res = s.advanceLocked(len(catalog.Products), catalog.Products)
	}
	res.CatalogBody = true
	return res
}

// advanceLocked moves the cursor per the current strategy and builds
// the next fetch, enforcing the short-page and max-pages terminals.
func (s *State) advanceLocked(count int, products []models.RawProduct) StepResult {
	switch s.strategy {
	case StrategyOffset:
		if count < s.opts.PageSize {
			res := s.terminateLocked(ReasonShortPage)
			res.Products = products
			return res
		}
		s.offset += s.opts.PageSize
	default:
		s.page++
	}

	if s.page > s.opts.MaxPages || s.pagesCrawled >= s.opts.MaxPages {
		res := s.terminateLocked(ReasonMaxPages)
		res.Products = products
		return res
	}

	return StepResult{
		Products: products,
		Next:     []Request{s.listingRequestLocked()},
	}
}

// fallbackLocked advances to the next candidate strategy, resetting
// the cursor, or terminates the shop when none remain.
func (s *State) fallbackLocked() StepResult {
	from := s.strategy
	next := s.strategy.Next()
	if next == StrategyNone {
		res := s.terminateLocked(ReasonStrategiesExhausted)
		s.failed = true
		return res
	}
	s.strategy = next
	s.page = 1
	s.offset = 0
	s.consecutiveEmpty = 0
	return StepResult{
		Next:         []Request{s.listingRequestLocked()},
		Switched:     true,
		SwitchedFrom: from,
		SwitchedTo:   next,
	}
}

func (s *State) terminateLocked(reason TerminalReason) StepResult {
	s.done = true
	return StepResult{Terminal: true, Reason: reason}
}

// looksLikeMarkup reports whether a body that failed to yield records
// is really an HTML document served in place of the catalog.
func looksLikeMarkup(body []byte) bool {
	head := strings.ToLower(string(body))
	if len(head) > 1024 {
		head = head[:1024]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype")
}
