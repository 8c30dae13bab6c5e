// Package youtube is the upstream fetch collaborator: it resolves
// channel references and lists a channel's videos through the YouTube
// Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"ytgate/internal/types"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"
	pageSize       = 50
)

// channelIDPattern matches a canonical channel id: "UC" + 22 id chars
var channelIDPattern = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)

// Page is one page of a channel's video listing
type Page struct {
	Videos        []types.VideoRecord
	NextPageToken string
}

// Client talks to the YouTube Data API. Outbound calls are paced by a
// token bucket so a burst of cache misses cannot hammer the API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests point it at httptest)
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit sets the outbound pacing
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient creates an API client for the given key
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsChannelID reports whether s is a canonical channel id
func IsChannelID(s string) bool {
	return channelIDPattern.MatchString(s)
}

// ResolveChannelID turns a channel reference (canonical id, channel URL,
// @handle or custom URL) into a channel id. Forms that embed the id are
// resolved locally; the rest go through the search endpoint.
func (c *Client) ResolveChannelID(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidChannel
	}

	if IsChannelID(input) {
		return input, nil
	}

	if strings.Contains(input, "youtube.com/channel/") {
		id := strings.SplitN(input, "/channel/", 2)[1]
		id = strings.SplitN(id, "/", 2)[0]
		id = strings.SplitN(id, "?", 2)[0]
		if !IsChannelID(id) {
			return "", fmt.Errorf("%w: %q", ErrInvalidChannel, input)
		}
		return id, nil
	}

	query := input
	switch {
	case strings.Contains(input, "youtube.com/@"):
		query = strings.SplitN(input, "@", 2)[1]
		query = strings.SplitN(query, "/", 2)[0]
		query = strings.SplitN(query, "?", 2)[0]
	case strings.Contains(input, "youtube.com/c/"):
		query = strings.SplitN(input, "/c/", 2)[1]
		query = strings.SplitN(query, "/", 2)[0]
		query = strings.SplitN(query, "?", 2)[0]
	case strings.HasPrefix(input, "@"):
		query = strings.TrimPrefix(input, "@")
	case strings.Contains(input, "/"):
		// Unrecognized URL shape
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, input)
	}
	if query == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, input)
	}

	return c.searchChannel(ctx, query)
}

// searchChannel resolves a channel name or handle via the search endpoint
func (c *Client) searchChannel(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "channel")
	params.Set("q", query)
	params.Set("maxResults", "1")

	body, err := c.get(ctx, "/search", params)
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "items.0.id.channelId").String()
	if id == "" {
		return "", &UpstreamError{Code: CodeNotFound, StatusCode: http.StatusNotFound, Message: "channel not found"}
	}
	return id, nil
}

// searchResponse is the subset of the search listing we consume
type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string    `json:"title"`
			Description string    `json:"description"`
			PublishedAt time.Time `json:"publishedAt"`
			Thumbnails  struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// FetchPage lists one page of the channel's videos, newest first.
// An empty NextPageToken means the listing is complete.
func (c *Client) FetchPage(ctx context.Context, channelID, pageToken string) (*Page, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("channelId", channelID)
	params.Set("order", "date")
	params.Set("type", "video")
	params.Set("maxResults", fmt.Sprintf("%d", pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	body, err := c.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &UpstreamError{Code: CodeOther, Message: fmt.Sprintf("decode response: %v", err)}
	}

	page := &Page{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		page.Videos = append(page.Videos, types.VideoRecord{
			VideoID:     item.ID.VideoID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			PublishedAt: item.Snippet.PublishedAt,
			Thumbnail:   item.Snippet.Thumbnails.High.URL,
			URL:         "https://www.youtube.com/watch?v=" + item.ID.VideoID,
		})
	}
	return page, nil
}

// get performs a paced GET against the API and classifies failures
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Code: CodeOther, Message: err.Error()}
	}

	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &UpstreamError{Code: CodeOther, Message: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Code: CodeOther, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &UpstreamError{Code: CodeOther, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyError(resp.StatusCode, body)
	}
	return body, nil
}

// classifyError maps an API error response onto the taxonomy using the
// error reason the API embeds in the body
func classifyError(status int, body []byte) *UpstreamError {
	reason := gjson.GetBytes(body, "error.errors.0.reason").String()
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = http.StatusText(status)
	}

	switch reason {
	case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
		return &UpstreamError{Code: CodeQuotaExceeded, StatusCode: status, Message: message}
	case "channelNotFound", "notFound":
		return &UpstreamError{Code: CodeNotFound, StatusCode: status, Message: message}
	}

	switch status {
	case http.StatusNotFound:
		return &UpstreamError{Code: CodeNotFound, StatusCode: status, Message: message}
	case http.StatusForbidden, http.StatusTooManyRequests:
		return &UpstreamError{Code: CodeQuotaExceeded, StatusCode: status, Message: message}
	}
	return &UpstreamError{Code: CodeOther, StatusCode: status, Message: message}
}
