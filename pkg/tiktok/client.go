// Package tiktok talks to the TikTok detail API and the QuickVids short-URL
// API, and detects supported links in message content.
package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/small-frappuccino/quickvids/pkg/log"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	"golang.org/x/time/rate"
)

var (
	// ErrStatus means the API answered with a non-zero status_code.
	ErrStatus = errors.New("tiktok api returned an error status")
	// ErrUnavailable means the post is deleted, private or under review.
	ErrUnavailable = errors.New("tiktok post unavailable")
	// ErrTransport covers network failures and non-2xx HTTP responses.
	ErrTransport = errors.New("tiktok api request failed")
	// ErrNotFound means the requested user or music does not exist.
	ErrNotFound = errors.New("tiktok resource not found")
)

// ShortLinker creates short links for converted videos.
type ShortLinker interface {
	CreateShortLink(videoID, videoURI, fileID string) (storage.ShortLink, error)
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string

	HTTPClient    *http.Client
	Retry         RetryOptions
	CacheSize     int
	CacheTTL      time.Duration
	RatePerSecond float64

	// ShortLinks and WebBaseURL enable short-link creation for video posts.
	ShortLinks ShortLinker
	WebBaseURL string
}

// Client is safe for concurrent use.
type Client struct {
	apiKey    string
	base      string
	shortBase string
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	logger    *slog.Logger

	posts *expirable.LRU[string, *Post]
	music *expirable.LRU[string, *Music]
	users *expirable.LRU[string, *User]

	shortLinks ShortLinker
	webBase    string
}

// NewClient builds a client against {BaseURL}/v1/tiktok.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}
	logger := log.ApplicationLogger().With("component", "tiktok")
	return &Client{
		apiKey:     opts.APIKey,
		base:       strings.TrimRight(opts.BaseURL, "/") + "/v1/tiktok",
		shortBase:  "https://www.tiktok.com/t/",
		http:       newRetryClient(opts.HTTPClient, opts.Retry, logger),
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		posts:      expirable.NewLRU[string, *Post](opts.CacheSize, nil, opts.CacheTTL),
		music:      expirable.NewLRU[string, *Music](opts.CacheSize, nil, opts.CacheTTL),
		users:      expirable.NewLRU[string, *User](opts.CacheSize, nil, opts.CacheTTL),
		shortLinks: opts.ShortLinks,
		webBase:    strings.TrimRight(opts.WebBaseURL, "/"),
	}
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	u := c.base + endpoint
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("Sending TikTok API request", "method", req.Method, "url", u)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", ErrTransport, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, endpoint, err)
	}
	return nil
}

// FetchPost returns the post with the given aweme ID.
func (c *Client) FetchPost(ctx context.Context, id string) (*Post, error) {
	if p, ok := c.posts.Get(id); ok {
		return p, nil
	}
	var resp postResponse
	if err := c.get(ctx, "/detail/post/"+url.PathEscape(id), &resp); err != nil {
		c.logger.Warn("TikTok post fetch failed", "post_id", id, "err", err)
		return nil, err
	}
	if resp.StatusCode != 0 {
		return nil, fmt.Errorf("%w: post %s status %d", ErrStatus, id, resp.StatusCode)
	}
	if resp.Detail == nil {
		return nil, fmt.Errorf("%w: post %s", ErrUnavailable, id)
	}
	post := resp.Detail
	if c.shortLinks != nil && !post.IsImagePost() {
		c.attachShortURL(id, post)
	}
	c.posts.Add(id, post)
	return post, nil
}

// attachShortURL derives the file and video IDs from the tiktokv.com play
// address and records a short link for the post.
func (c *Client) attachShortURL(id string, post *Post) {
	raw := post.Video.PlayAddrH264.Containing("tiktokv.com")
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	q := u.Query()
	link, err := c.shortLinks.CreateShortLink(id, q.Get("video_id"), q.Get("file_id"))
	if err != nil {
		c.logger.Warn("Short link creation failed", "post_id", id, "err", err)
		return
	}
	post.ShortURL = c.webBase + "/" + link.Slug
}

// FetchMusic returns the music with the given ID.
func (c *Client) FetchMusic(ctx context.Context, id string) (*Music, error) {
	if m, ok := c.music.Get(id); ok {
		return m, nil
	}
	var resp musicResponse
	if err := c.get(ctx, "/detail/music/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != 0 {
		return nil, fmt.Errorf("%w: music %s status %d", ErrStatus, id, resp.StatusCode)
	}
	if resp.Music == nil {
		return nil, fmt.Errorf("%w: music %s", ErrNotFound, id)
	}
	c.music.Add(id, resp.Music)
	return resp.Music, nil
}

// UserQuery selects a user by sec_uid or unique_id (username).
type UserQuery struct {
	SecUID   string
	UniqueID string
}

func (q UserQuery) key() string {
	if q.SecUID != "" {
		return "sec:" + q.SecUID
	}
	return "uid:" + strings.ToLower(q.UniqueID)
}

// FetchUser looks a profile up by sec_uid or username.
func (c *Client) FetchUser(ctx context.Context, q UserQuery) (*User, error) {
	if q.SecUID == "" && q.UniqueID == "" {
		return nil, fmt.Errorf("%w: empty user query", ErrNotFound)
	}
	if u, ok := c.users.Get(q.key()); ok {
		return u, nil
	}
	params := url.Values{}
	if q.SecUID != "" {
		params.Set("sec_uid", q.SecUID)
	} else {
		params.Set("unique_id", strings.TrimPrefix(q.UniqueID, "@"))
	}
	var resp userResponse
	if err := c.get(ctx, "/detail/user?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != 0 || resp.User == nil || resp.User.SecUID == "" {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, q.key())
	}
	c.users.Add(q.key(), resp.User)
	return resp.User, nil
}
