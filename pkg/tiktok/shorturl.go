package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/small-frappuccino/quickvids/pkg/log"
	"golang.org/x/time/rate"
)

const shortURLUserAgent = "QuickVids Rest Bot/1.0"

// Platform is the source of a converted post.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformUnknown   Platform = "unknown"
)

// ShortURL is the result of a conversion.
type ShortURL struct {
	URL     string `json:"quickvids_url"`
	Type    string `json:"type"`
	Details struct {
		Post struct {
			ID FlexString `json:"id"`
		} `json:"post"`
	} `json:"details"`
}

// PostID is the platform ID of the converted post.
func (s *ShortURL) PostID() string { return s.Details.Post.ID.String() }

// Platform derives the source platform from the type prefix.
func (s *ShortURL) Platform() Platform {
	switch {
	case strings.HasPrefix(s.Type, "tt_"):
		return PlatformTikTok
	case strings.HasPrefix(s.Type, "ig_"):
		return PlatformInstagram
	default:
		return PlatformUnknown
	}
}

// ShortURLClient converts free text containing a link into a QuickVids URL.
type ShortURLClient struct {
	base    string
	token   string
	http    *retryablehttp.Client
	limiter *rate.Limiter
}

// NewShortURLClient talks to {baseURL}/v2/quickvids/shorturl.
func NewShortURLClient(baseURL, token string, httpClient *http.Client, retry RetryOptions) *ShortURLClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ShortURLClient{
		base:    strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    newRetryClient(httpClient, retry, log.ApplicationLogger().With("component", "shorturl")),
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// Create posts input and returns the short URL. Any failure, including a
// response without a URL, wraps ErrTransport.
func (c *ShortURLClient) Create(ctx context.Context, input string) (*ShortURL, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	body, err := json.Marshal(map[string]any{"input_text": input, "detailed": true})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v2/quickvids/shorturl", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", shortURLUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: shorturl returned %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out ShortURL
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode shorturl: %v", ErrTransport, err)
	}
	if out.URL == "" {
		return nil, fmt.Errorf("%w: shorturl response without url", ErrTransport)
	}
	return &out, nil
}
