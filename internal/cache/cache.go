package cache

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/shared"
)

// EntryKind classifies a cache lookup result.
type EntryKind int

const (
	// Absent means no usable entry exists for the fingerprint.
	Absent EntryKind = iota
	// Positive means a prior resolution chose a backend track.
	Positive
	// Negative means a prior resolution searched and found nothing.
	Negative
)

// Entry is one row of the resolution cache.
type Entry struct {
	Fingerprint string
	Kind        EntryKind
	BackendID   string
	Title       string
	Artist      string
	Album       string
	Score       float64
	Source      string
	CreatedAt   time.Time
}

// stripeCount sizes the mutex stripe table for per-fingerprint write
// serialization.
const stripeCount = 64

// Store is the persistent resolution cache. Writes to the same
// fingerprint are serialized through striped locks; reads go straight
// to the database.
type Store struct {
	db          *sql.DB
	logger      *log.Logger
	negativeTTL time.Duration
	stripes     [stripeCount]sync.Mutex
}

// NewStore creates a Store over an open database. negativeTTL bounds
// the lifetime of negative entries; zero disables expiry.
func NewStore(db *sql.DB, logger *log.Logger, negativeTTL time.Duration) *Store {
	return &Store{db: db, logger: logger, negativeTTL: negativeTTL}
}

func (s *Store) lock(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &s.stripes[h.Sum32()%stripeCount]
}

// Get returns the cache entry for a fingerprint. Expired negative
// entries read as Absent and are deleted in passing.
func (s *Store) Get(fingerprint string) (Entry, error) {
	entry := Entry{Fingerprint: fingerprint, Kind: Absent}

	var backendID sql.NullString
	row := s.db.QueryRow(
		"SELECT backend_id, title, artist, album, score, source, created_at FROM resolution_cache WHERE fingerprint = ?",
		fingerprint,
	)
	err := row.Scan(&backendID, &entry.Title, &entry.Artist, &entry.Album, &entry.Score, &entry.Source, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return entry, nil
	}
	if err != nil {
		return entry, fmt.Errorf("%w: lookup for %q: %v", shared.ErrCacheStorage, fingerprint, err)
	}

	if !backendID.Valid {
		if s.negativeTTL > 0 && time.Since(entry.CreatedAt) > s.negativeTTL {
			s.logger.Debug("negative cache entry expired", "fingerprint", fingerprint)
			if err := s.Invalidate(fingerprint); err != nil {
				return Entry{Fingerprint: fingerprint, Kind: Absent}, err
			}
			return Entry{Fingerprint: fingerprint, Kind: Absent}, nil
		}
		entry.Kind = Negative
		return entry, nil
	}

	entry.Kind = Positive
	entry.BackendID = backendID.String
	return entry, nil
}

// PutPositive records a chosen candidate under a fingerprint,
// overwriting any prior entry of either kind.
func (s *Store) PutPositive(fingerprint string, c models.Candidate) error {
	mu := s.lock(fingerprint)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.db.Exec(
		`REPLACE INTO resolution_cache (fingerprint, backend_id, title, artist, album, score, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		fingerprint, c.BackendID, c.Title, c.Artist, c.Album, c.Score, c.Provenance.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: write for %q: %v", shared.ErrCacheStorage, fingerprint, err)
	}

	s.logger.Debug("cached resolution", "fingerprint", fingerprint, "backend_id", c.BackendID, "score", c.Score)
	return nil
}

// PutNegative records that a search for a fingerprint found nothing.
// Refused when the fingerprint has no title segment, and never
// replaces an existing positive entry.
func (s *Store) PutNegative(fingerprint string) error {
	if !HasTitle(fingerprint) {
		return fmt.Errorf("%w: refusing negative entry for title-less fingerprint %q", shared.ErrInvalidInput, fingerprint)
	}

	mu := s.lock(fingerprint)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.Get(fingerprint)
	if err != nil {
		return err
	}
	if existing.Kind == Positive {
		s.logger.Debug("keeping positive entry over negative", "fingerprint", fingerprint)
		return nil
	}

	_, err = s.db.Exec(
		`REPLACE INTO resolution_cache (fingerprint, backend_id, title, artist, album, score, source, created_at)
		 VALUES (?, NULL, '', '', '', 0, '', CURRENT_TIMESTAMP)`,
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("%w: negative write for %q: %v", shared.ErrCacheStorage, fingerprint, err)
	}

	s.logger.Debug("cached negative result", "fingerprint", fingerprint)
	return nil
}

// Invalidate removes the entry for a fingerprint, if any.
func (s *Store) Invalidate(fingerprint string) error {
	_, err := s.db.Exec("DELETE FROM resolution_cache WHERE fingerprint = ?", fingerprint)
	if err != nil {
		return fmt.Errorf("%w: invalidate for %q: %v", shared.ErrCacheStorage, fingerprint, err)
	}
	return nil
}

// ClearNegatives deletes negative entries, optionally only those whose
// fingerprint contains pattern. Returns the number removed.
func (s *Store) ClearNegatives(pattern string) (int64, error) {
	var res sql.Result
	var err error

	if pattern != "" {
		res, err = s.db.Exec(
			"DELETE FROM resolution_cache WHERE backend_id IS NULL AND fingerprint LIKE ?",
			"%"+pattern+"%",
		)
	} else {
		res, err = s.db.Exec("DELETE FROM resolution_cache WHERE backend_id IS NULL")
	}
	if err != nil {
		return 0, fmt.Errorf("%w: clear negatives: %v", shared.ErrCacheStorage, err)
	}

	count, _ := res.RowsAffected()
	s.logger.Info("cleared negative cache entries", "count", count, "pattern", pattern)
	return count, nil
}

// Clear deletes every cache entry and returns the number removed.
func (s *Store) Clear() (int64, error) {
	res, err := s.db.Exec("DELETE FROM resolution_cache")
	if err != nil {
		return 0, fmt.Errorf("%w: clear: %v", shared.ErrCacheStorage, err)
	}

	count, _ := res.RowsAffected()
	s.logger.Info("cleared resolution cache", "count", count)
	return count, nil
}

// Stats summarizes cache contents.
type Stats struct {
	Total    int64
	Positive int64
	Negative int64
	Oldest   time.Time
}

// Stats reports entry counts by kind and the oldest entry timestamp.
func (s *Store) Stats() (Stats, error) {
	var stats Stats

	// MIN() strips the column's declared type, so the timestamp comes
	// back as text and is parsed here.
	var oldest sql.NullString
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN backend_id IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN backend_id IS NULL THEN 1 ELSE 0 END), 0),
		       MIN(created_at)
		FROM resolution_cache`)
	if err := row.Scan(&stats.Total, &stats.Positive, &stats.Negative, &oldest); err != nil {
		return stats, fmt.Errorf("%w: stats: %v", shared.ErrCacheStorage, err)
	}

	if oldest.Valid {
		if t, err := time.Parse("2006-01-02 15:04:05", oldest.String); err == nil {
			stats.Oldest = t
		}
	}

	return stats, nil
}
