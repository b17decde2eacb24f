package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/shared"
)

const defaultLLMTimeout = 20 * time.Second

const cleanQueryPrompt = `Search for information about this song: %s

Return ONLY the most accurate metadata in this exact JSON format:
{
  "title": "exact song title",
  "artist": "exact artist name",
  "album": "exact album name"
}

Do not include any additional text or explanation, just the JSON object.`

var jsonObjectRe = regexp.MustCompile(`\{[^{}]*\}`)

// LLMService implements QueryCleaner by asking a chat-completion model
// to repair noisy track metadata.
type LLMService struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	timeout    time.Duration
}

// LLMOpts configures an LLMService.
type LLMOpts struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewLLMService creates a query cleaner against an OpenAI-compatible endpoint.
func NewLLMService(opts LLMOpts) *LLMService {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}

	return &LLMService{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: client,
		timeout:    timeout,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// CleanQuery asks the model for corrected metadata. Any transport or
// parse failure surfaces as ErrLLMUnavailable so callers can degrade
// silently.
func (l *LLMService) CleanQuery(ctx context.Context, q models.TrackQuery) (*models.TrackQuery, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(cleanQueryPrompt, describeQuery(q))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", shared.ErrLLMUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", shared.ErrLLMUnavailable, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", shared.ErrLLMUnavailable)
	}

	cleaned, err := parseCleanedMetadata(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	// Duration and external ids pass through unchanged; the model only
	// repairs text fields.
	cleaned.DurationSecs = q.DurationSecs
	cleaned.ExternalIDs = q.ExternalIDs
	return cleaned, nil
}

func describeQuery(q models.TrackQuery) string {
	desc := q.Title
	if q.Artist != "" {
		desc += " by " + q.Artist
	}
	if q.Album != "" {
		desc += " from " + q.Album
	}
	return desc
}

// parseCleanedMetadata extracts the first JSON object from the model
// output. A missing or title-less object is an ErrLLMUnavailable: the
// cleaner produced nothing usable.
func parseCleanedMetadata(content string) (*models.TrackQuery, error) {
	match := jsonObjectRe.FindString(content)
	if match == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", shared.ErrLLMUnavailable)
	}

	var meta struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Album  string `json:"album"`
	}
	if err := json.Unmarshal([]byte(match), &meta); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", shared.ErrLLMUnavailable, err)
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: response missing title", shared.ErrLLMUnavailable)
	}

	return &models.TrackQuery{
		Title:  title,
		Artist: strings.TrimSpace(meta.Artist),
		Album:  strings.TrimSpace(meta.Album),
	}, nil
}
