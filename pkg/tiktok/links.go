package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// MediaType classifies a detected link.
type MediaType int

const (
	MediaTikTokVideo MediaType = iota + 1
	MediaTikTokImage
	MediaTikTokMusic
	MediaTikTokUser
	MediaUnknown
	MediaInstagramReel
)

// IDType says which kind of identifier a link carries.
type IDType int

const (
	IDLong IDType = iota
	IDShort
	IDUser
)

// Link is a detected TikTok or Instagram link.
type Link struct {
	IDType IDType
	ID     string
	URL    string
	Type   MediaType
}

type linkPattern struct {
	re  *regexp.Regexp
	typ MediaType
}

// Order matters: the first pattern with a match wins.
var linkPatterns = []linkPattern{
	{regexp.MustCompile(`(?P<http>https?://)?(?:www\.)?tiktok\.com/(?:@.{1,24}|@[a-zA-Z0-9_-]{50,80})/(?:video|photo)/(?P<long_id>\d{1,30})`), MediaTikTokVideo},
	{regexp.MustCompile(`(?P<http>https?://)?(?:www\.)?tiktok\.com/t/(?P<short_id>\w{5,15})`), MediaUnknown},
	{regexp.MustCompile(`(?P<http>https?://)?(?P<sub>\w{2})\.tiktok\.com/(?P<short_id>\w{5,15})`), MediaUnknown},
	{regexp.MustCompile(`(?P<http>https?://)?(?:m\.|www\.)?tiktok\.com/v/(?P<long_id>\d{1,30})`), MediaTikTokVideo},
	{regexp.MustCompile(`(?P<http>https?://)?(?:www)?\.tiktok\.com/(?:.*)item_id=(?P<long_id>\d{1,30})`), MediaTikTokVideo},
	{regexp.MustCompile(`(?P<http>https?://)?(?:www\.)?tiktok\.com/music/(?:[\w\-0-9]*-)?(?P<long_id>\d{1,30})`), MediaTikTokMusic},
	{regexp.MustCompile(`(?P<http>https?://)?(?:www\.)?tiktok\.com/(?P<user_id>@[\w.]{1,24})`), MediaTikTokUser},
	{regexp.MustCompile(`(?P<http>https?://)?(?:www\.)?instagram\.com/(?:p|reel|reels)/(?P<long_id>[A-Za-z0-9_-]+)`), MediaInstagramReel},
}

// FindLink returns the first supported link in content.
func FindLink(content string) (Link, bool) {
	for _, p := range linkPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(content, -1) {
			groups := namedGroups(p.re, content, m)
			// Two-letter subdomains are short-link hosts (vm, vt); www is not.
			if groups["sub"] == "ww" {
				continue
			}
			link := Link{URL: content[m[0]:m[1]], Type: p.typ}
			switch {
			case groups["long_id"] != "":
				link.IDType, link.ID = IDLong, groups["long_id"]
			case groups["short_id"] != "":
				link.IDType, link.ID = IDShort, groups["short_id"]
			default:
				link.IDType, link.ID = IDUser, groups["user_id"]
			}
			if groups["http"] == "" {
				link.URL = "https://" + link.URL
			}
			return link, true
		}
	}
	return Link{}, false
}

func namedGroups(re *regexp.Regexp, s string, m []int) map[string]string {
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name == "" || 2*i+1 >= len(m) || m[2*i] < 0 {
			continue
		}
		out[name] = s[m[2*i]:m[2*i+1]]
	}
	return out
}

var supportedHosts = []string{"tiktok.com", "instagram.com"}

// ContainsSupportedHost is the cheap pre-check run before any API call.
func ContainsSupportedHost(content string) bool {
	for _, h := range supportedHosts {
		if strings.Contains(content, h) {
			return true
		}
	}
	return false
}

const redirectUserAgent = "Wheregoes.com Redirect Checker/1.0"

// ResolveShortLink follows one redirect of a short link and returns the
// link found at the target. Non-short links and failed lookups return the
// input unchanged.
func (c *Client) ResolveShortLink(ctx context.Context, link Link) (Link, error) {
	if link.IDType != IDShort {
		return link, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.shortBase+link.ID, nil)
	if err != nil {
		return link, err
	}
	req.Header.Set("User-Agent", redirectUserAgent)

	noRedirect := *c.http.HTTPClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := noRedirect.Do(req)
	if err != nil {
		return link, fmt.Errorf("resolve short link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMovedPermanently && resp.StatusCode != http.StatusFound {
		return link, nil
	}
	target, ok := FindLink(resp.Header.Get("Location"))
	if !ok {
		return link, nil
	}
	return target, nil
}
