package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/storefront-tools/shopcrawl/models"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeShopFilename builds the per-shop output filename from a shop
// domain, replacing filesystem-hostile characters.
func SafeShopFilename(shop string) string {
	return fmt.Sprintf("products_%s.jsonl", unsafeFilenameChars.ReplaceAllString(shop, "_"))
}

// HeaderFunc supplies the currency header record for a shop at the
// moment its output stream is opened.
type HeaderFunc func(shop string) models.CurrencyInfo

// ShopFileWriter appends newline-delimited records to one file per
// shop. The first record of every stream is the currency header, even
// when currency detection never succeeded. Appends are serialized so
// partial writes never interleave.
type ShopFileWriter struct {
	dir    string
	header HeaderFunc

	mu    sync.Mutex
	files map[string]*shopFile
}

type shopFile struct {
	file   *os.File
	buf    *bufio.Writer
	engine *json.Encoder
}

// NewShopFileWriter builds the sink, creating the output directory.
func NewShopFileWriter(dir string, header HeaderFunc) (*ShopFileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %q: %w", dir, err)
	}
	if header == nil {
		return nil, fmt.Errorf("header func is required")
	}
	return &ShopFileWriter{
		dir:    dir,
		header: header,
		files:  make(map[string]*shopFile),
	}, nil
}

// Write appends one product record to its shop's stream, opening the
// stream and writing the header first when needed.
func (w *ShopFileWriter) Write(p *models.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sf, err := w.ensureLocked(p.Shop)
	if err != nil {
		return err
	}
	if err := sf.engine.Encode(p); err != nil {
		return fmt.Errorf("encode product record: %w", err)
	}
	if err := sf.buf.Flush(); err != nil {
		return fmt.Errorf("flush product record: %w", err)
	}
	return nil
}

// EnsureHeader opens a shop's stream if nothing was ever written to it,
// so shops that produced no records still get their currency header.
func (w *ShopFileWriter) EnsureHeader(shop string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.ensureLocked(shop)
	return err
}

func (w *ShopFileWriter) ensureLocked(shop string) (*shopFile, error) {
	if sf, ok := w.files[shop]; ok {
		return sf, nil
	}

	path := filepath.Join(w.dir, SafeShopFilename(shop))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open shop output %q: %w", path, err)
	}

	buf := bufio.NewWriter(f)
	sf := &shopFile{file: f, buf: buf, engine: json.NewEncoder(buf)}

	if err := sf.engine.Encode(w.header(shop)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header record: %w", err)
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush header record: %w", err)
	}

	w.files[shop] = sf
	return sf, nil
}

// Close flushes and closes every shop stream, returning the first
// error encountered.
func (w *ShopFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for shop, sf := range w.files {
		if err := sf.buf.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush %s: %w", shop, err)
		}
		if err := sf.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", shop, err)
		}
	}
	w.files = make(map[string]*shopFile)
	return firstErr
}
