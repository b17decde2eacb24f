// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/services"
)

// MockBackend is a configurable test double for [services.Backend].
// Results maps a search key (free text, or "title|artist") to the
// candidates returned; unmatched searches return nothing.
type MockBackend struct {
	mu       sync.Mutex
	Results  map[string][]models.Candidate
	Tracks   map[string]models.Candidate
	Err      error // returned on every search
	ErrOnce  error // returned on the first search only
	Searches []services.SearchQuery
}

func (m *MockBackend) SearchTracks(ctx context.Context, q services.SearchQuery) ([]models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Searches = append(m.Searches, q)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.ErrOnce != nil && len(m.Searches) == 1 {
		return nil, m.ErrOnce
	}

	key := q.Text
	if key == "" {
		key = q.Title + "|" + q.Artist
	}
	return m.Results[key], nil
}

func (m *MockBackend) GetTrack(ctx context.Context, id string) (*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.Tracks[id]; ok {
		c := t
		c.Provenance = models.ProvenanceLinked
		return &c, nil
	}
	return nil, errors.New("track not found: " + id)
}

func (m *MockBackend) Name() string { return "mock" }

// SearchCount returns how many searches the backend has served.
func (m *MockBackend) SearchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Searches)
}

// MockCleaner is a test double for [services.QueryCleaner].
type MockCleaner struct {
	Cleaned *models.TrackQuery
	Err     error
	Calls   int
}

func (m *MockCleaner) CleanQuery(ctx context.Context, q models.TrackQuery) (*models.TrackQuery, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Cleaned, nil
}

// MockIndex is a test double for [services.LocalIndex].
type MockIndex struct {
	Candidates []models.Candidate
	Err        error
	Calls      int
}

func (m *MockIndex) Nearest(ctx context.Context, q models.TrackQuery, k int) ([]models.Candidate, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if k < len(m.Candidates) {
		return m.Candidates[:k], nil
	}
	return m.Candidates, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
