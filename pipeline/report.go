package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/storefront-tools/shopcrawl/models"
)

// WriteReport writes the plain-text run summary, one line per shop.
func WriteReport(path string, summaries []models.ShopSummary) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory %q: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, s := range summaries {
		if _, err := fmt.Fprintln(w, s.Line()); err != nil {
			return fmt.Errorf("write report line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}
