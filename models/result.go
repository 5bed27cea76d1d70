package models

import (
	"fmt"
	"time"
)

// ShopSummary aggregates one shop's final counters for the report.
type ShopSummary struct {
	Shop         string
	Items        int
	Saved        int
	Failed       int
	PagesCrawled int
}

// Line renders the summary in the report file format.
func (s ShopSummary) Line() string {
	return fmt.Sprintf("%s: items=%d, saved=%d, failed=%d, pages_crawled=%d",
		s.Shop, s.Items, s.Saved, s.Failed, s.PagesCrawled)
}

// CrawlResult holds the overall outcome of a crawl run.
type CrawlResult struct {
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	PageCount    int
	ErrorCount   int
	RetryCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	Summaries    []ShopSummary
}
