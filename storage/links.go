package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LinkHeader is the single column of the link list.
const LinkHeader = "Date_Link"

// LinkStore persists the ordered list of detail-page URLs found by discovery.
type LinkStore struct {
	path string
}

func NewLinkStore(path string) *LinkStore {
	return &LinkStore{path: path}
}

func (s *LinkStore) Path() string { return s.path }

// WriteLinks replaces the stored list with links. The new file is written
// beside the old one and renamed over it, so readers never see a partial list.
func (s *LinkStore) WriteLinks(links []string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("links: create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".links-*.csv")
	if err != nil {
		return fmt.Errorf("links: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{LinkHeader}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("links: write header: %w", err)
	}
	for _, l := range links {
		if err := w.Write([]string{l}); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("links: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("links: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("links: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("links: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("links: replace %q: %w", s.path, err)
	}
	return nil
}

// ReadLinks returns the stored URLs in order. Blank rows are skipped.
func (s *LinkStore) ReadLinks() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("links: open %q: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var links []string
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("links: read %q: %w", s.path, err)
		}
		if first {
			first = false
			if len(row) > 0 && strings.TrimSpace(row[0]) == LinkHeader {
				continue
			}
		}
		if len(row) == 0 {
			continue
		}
		if link := strings.TrimSpace(row[0]); link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}
