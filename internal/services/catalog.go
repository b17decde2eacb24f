package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/shared"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultCatalogTimeout = 10 * time.Second

// catalogTrack is the backend's wire representation of a track.
type catalogTrack struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Album        string  `json:"album"`
	DurationSecs float64 `json:"duration_seconds"`
}

func (t catalogTrack) toCandidate() models.Candidate {
	return models.Candidate{
		BackendID:    t.ID,
		Title:        t.Title,
		Artist:       t.Artist,
		Album:        t.Album,
		DurationSecs: t.DurationSecs,
		Provenance:   models.ProvenanceSearch,
	}
}

// CatalogService implements Backend against an HTTP catalog API.
type CatalogService struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	timeout    time.Duration
}

// CatalogOpts configures a CatalogService.
type CatalogOpts struct {
	BaseURL   string
	AuthToken string

	// Client credentials; when ClientID is set the adapter fetches
	// bearer tokens from TokenURL instead of sending AuthToken.
	ClientID     string
	ClientSecret string
	TokenURL     string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewCatalogService creates a catalog adapter. With client credentials
// configured, requests go through an oauth2 token-refreshing client.
func NewCatalogService(opts CatalogOpts) *CatalogService {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	if opts.ClientID != "" && opts.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		client = cc.Client(context.Background())
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCatalogTimeout
	}

	return &CatalogService{
		baseURL:    opts.BaseURL,
		authToken:  opts.AuthToken,
		httpClient: client,
		timeout:    timeout,
	}
}

// Name returns the backend name.
func (c *CatalogService) Name() string {
	return "catalog"
}

func (c *CatalogService) doRequest(ctx context.Context, method, endpoint string, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", shared.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", shared.ErrTransientNetwork, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Detail != "" {
			return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Detail)
		}
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// classifyTransportError maps network-level failures onto the retryable
// sentinels so the orchestrator can decide whether a second attempt is
// worth it.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", shared.ErrTransientNetwork, err)
}

// IsRetryable reports whether a backend error is worth one more attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, shared.ErrTransientNetwork) ||
		errors.Is(err, shared.ErrRateLimited) ||
		errors.Is(err, shared.ErrTimeout)
}

// SearchTracks runs one search. Structured fields are sent as separate
// parameters; free text searches use the q parameter.
//
// Calls GET /api/tracks/search on the backend.
func (c *CatalogService) SearchTracks(ctx context.Context, q SearchQuery) ([]models.Candidate, error) {
	params := url.Values{}
	if q.Text != "" {
		params.Set("q", q.Text)
	} else {
		if q.Title != "" {
			params.Set("title", q.Title)
		}
		if q.Artist != "" {
			params.Set("artist", q.Artist)
		}
		if q.Album != "" {
			params.Set("album", q.Album)
		}
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var results []catalogTrack
	if err := c.doRequest(ctx, http.MethodGet, "/api/tracks/search?"+params.Encode(), &results); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, len(results))
	for i, t := range results {
		candidates[i] = t.toCandidate()
	}

	return candidates, nil
}

// GetTrack fetches a single track by backend id.
//
// Calls GET /api/tracks/{id} on the backend.
func (c *CatalogService) GetTrack(ctx context.Context, id string) (*models.Candidate, error) {
	var result catalogTrack

	endpoint := fmt.Sprintf("/api/tracks/%s", url.PathEscape(id))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, &result); err != nil {
		if errors.Is(err, shared.ErrAPIRequest) {
			return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
		}
		return nil, err
	}

	candidate := result.toCandidate()
	candidate.Provenance = models.ProvenanceLinked
	return &candidate, nil
}
