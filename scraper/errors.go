package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Category labels a transport failure for metrics and the error
// breakdown in the run result.
type Category string

const (
	CategoryTimeout     Category = "timeout"
	CategoryConnection  Category = "connection"
	CategoryForbidden   Category = "forbidden"
	CategoryNotFound    Category = "not_found"
	CategoryRateLimited Category = "rate_limited"
	CategoryServer      Category = "server_error"
	CategoryOther       Category = "other"
)

// classify buckets a transport error by cause and status code.
func classify(err error, statusCode int) Category {
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnection
	}

	switch {
	case statusCode == http.StatusForbidden:
		return CategoryForbidden
	case statusCode == http.StatusNotFound:
		return CategoryNotFound
	case statusCode == http.StatusTooManyRequests:
		return CategoryRateLimited
	case statusCode >= 500:
		return CategoryServer
	}
	return CategoryOther
}

// transient reports whether the transport substrate should schedule a
// retry for this category. Mirrors the upstream retry policy: network
// trouble, throttling, and server errors are retryable; client errors
// are not.
func transient(c Category) bool {
	switch c {
	case CategoryTimeout, CategoryConnection, CategoryRateLimited, CategoryServer:
		return true
	default:
		return false
	}
}
