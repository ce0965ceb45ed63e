// Package knownsites implements the persistent per-domain extraction-rule
// store. The on-disk format is a JSON array of Site Config records that
// may carry operator comments between and around records; file.go
// implements the comment-preserving read/modify/write path since no
// off-the-shelf JSON library performs that round-trip (see DESIGN.md).
package knownsites

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/use-agent/smartscraper/models"
)

// Store is the mutex-serialized, file-backed Known-Sites Store. All
// mutations go through a single lock; the in-memory cache is updated only
// after a successful write, so a failed persist never leaves readers
// observing state that isn't actually on disk.
type Store struct {
	mu    sync.Mutex
	path  string
	doc   *document
	cache map[string]*models.SiteConfig
}

// Open loads path, or starts a fresh empty store if it does not exist yet.
// A corrupted file is a fatal configuration error, never a silent reset.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.doc = newEmptyDocument()
		s.cache = make(map[string]*models.SiteConfig)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("knownsites: reading %s: %w", path, err)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("knownsites: %s is corrupt: %w", path, err)
	}
	cache := make(map[string]*models.SiteConfig, len(doc.elements))
	for _, el := range doc.elements {
		var cfg models.SiteConfig
		if err := json.Unmarshal(el.raw, &cfg); err != nil {
			return nil, fmt.Errorf("knownsites: %s: record %q is corrupt: %w", path, el.domain, err)
		}
		cache[el.domain] = &cfg
	}

	s.doc = doc
	s.cache = cache
	return s, nil
}

// Get returns the config for domain, or nil if no record exists. The
// caller receives an independent copy.
func (s *Store) Get(domain string) *models.SiteConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[domain].Clone()
}

// Put inserts or replaces the full record for cfg.DomainPattern (I1:
// domain uniqueness is enforced by keying on DomainPattern).
func (s *Store) Put(cfg *models.SiteConfig) error {
	if cfg == nil || cfg.DomainPattern == "" {
		return fmt.Errorf("knownsites: put requires a non-empty domainPattern")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(cfg.Clone())
}

// MarkSuccess zeroes the failure counter and stamps the success timestamp
// (I2, I3). No-op if the domain has no record.
func (s *Store) MarkSuccess(domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cache[domain]
	if cfg == nil {
		return nil
	}
	updated := cfg.Clone()
	now := time.Now().UTC()
	updated.LastSuccessfulScrapeTimestamp = &now
	updated.FailureCountSinceLastSuccess = 0
	return s.writeLocked(updated)
}

// IncrementFailure bumps the failure counter by one. No-op if absent.
func (s *Store) IncrementFailure(domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cache[domain]
	if cfg == nil {
		return nil
	}
	updated := cfg.Clone()
	updated.FailureCountSinceLastSuccess++
	return s.writeLocked(updated)
}

// Delete removes the record for domain, if any. This is an operator-only
// operation; the core engine never deletes a record.
func (s *Store) Delete(domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[domain]; !ok {
		return nil
	}
	doc := *s.doc
	doc.elements = append([]element(nil), s.doc.elements...)
	doc.removeDomain(domain)

	if err := persist(s.path, doc.render()); err != nil {
		return err
	}
	s.doc = &doc
	delete(s.cache, domain)
	return nil
}

// writeLocked marshals cfg, upserts it into the shadow document, persists
// the whole file, and only then updates the in-memory cache. Caller must
// hold s.mu.
func (s *Store) writeLocked(cfg *models.SiteConfig) error {
	raw, err := json.MarshalIndent(cfg, "  ", "  ")
	if err != nil {
		return fmt.Errorf("knownsites: marshaling %s: %w", cfg.DomainPattern, err)
	}

	doc := *s.doc
	doc.elements = append([]element(nil), s.doc.elements...)
	doc.upsert(cfg.DomainPattern, raw)

	if err := persist(s.path, doc.render()); err != nil {
		return err
	}
	s.doc = &doc
	s.cache[cfg.DomainPattern] = cfg
	return nil
}

// persist writes data to path atomically: write to a sibling temp file,
// fsync, then rename over the destination.
func persist(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("knownsites: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".site_configs-*.tmp")
	if err != nil {
		return fmt.Errorf("knownsites: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("knownsites: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("knownsites: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("knownsites: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("knownsites: renaming into place: %w", err)
	}
	return nil
}
