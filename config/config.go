package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds crawler configuration.
type Config struct {
	Shops             []string
	Collection        string
	FilterTag         string
	FilterProductType string

	MaxPages       int // hard per-shop page ceiling
	PageSize       int // records requested per listing page
	EmptyPageLimit int // consecutive empty pages before a shop halts

	Parallelism     int
	Delay           time.Duration
	RandomDelay     time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	OutputDir  string
	ReportFile string

	PipelineBufferSize int
	DedupeMaxSize      int

	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool
	MetricsAddr      string
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxPages:           500,
		PageSize:           250,
		EmptyPageLimit:     3,
		Parallelism:        4,
		Delay:              time.Second,
		RandomDelay:        500 * time.Millisecond,
		Timeout:            15 * time.Second,
		MaxRetries:         3,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    10 * time.Second,
		OutputDir:          "output",
		ReportFile:         "output/report.txt",
		PipelineBufferSize: 512,
		DedupeMaxSize:      100000,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:            false,
		RespectRobotsTxt:   true,
	}
}

// SplitShops parses a comma-separated shop list, dropping empty entries.
func SplitShops(raw string) []string {
	var shops []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			shops = append(shops, s)
		}
	}
	return shops
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.Shops) == 0 {
		return fmt.Errorf("no shops configured: pass -shops or set SHOPS")
	}
	for _, shop := range c.Shops {
		if strings.TrimSpace(shop) == "" {
			return fmt.Errorf("shop list contains an empty entry")
		}
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.EmptyPageLimit <= 0 {
		return fmt.Errorf("empty page limit must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.ReportFile == "" {
		return fmt.Errorf("report file cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}
