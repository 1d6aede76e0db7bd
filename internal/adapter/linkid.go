package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	storyRe  = regexp.MustCompile(`stories/([^/?#]+)/(\d+)`)
	statusRe = regexp.MustCompile(`/status(?:es)?/(\d+)`)
	postRe   = regexp.MustCompile(`/(?:p|reel|tv)/([A-Za-z0-9_-]+)`)
	bvRe     = regexp.MustCompile(`BV[0-9A-Za-z]{10}`)
	avRe     = regexp.MustCompile(`(?i)(?:^|[/=])av(\d+)`)
)

// shortLinkHosts redirect to a full video page.
var shortLinkHosts = map[string]bool{
	"b23.tv": true,
}

// StoryID extracts the account and numeric story id from a story link
// such as https://www.instagram.com/stories/alice/3141592653/.
func StoryID(link string) (account, id string, ok bool) {
	m := storyRe.FindStringSubmatch(link)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// VideoID extracts a video-host id from a full video link: the BV form
// when present, otherwise "av" followed by the numeric id.
func VideoID(link string) (string, bool) {
	if id := bvRe.FindString(link); id != "" {
		return id, true
	}
	if m := avRe.FindStringSubmatch(link); m != nil {
		return "av" + m[1], true
	}
	return "", false
}

// ContentIDFromLink derives a content id from a post, story or video link.
// Returns "" when the link has no recognizable id.
func ContentIDFromLink(link string) string {
	if _, id, ok := StoryID(link); ok {
		return id
	}
	if m := statusRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	if m := postRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	if id, ok := VideoID(link); ok {
		return id
	}
	return ""
}

// LinkHash returns a stable, path-safe id for links without a natural id.
func LinkHash(link string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(link)))
	return hex.EncodeToString(sum[:6])
}

// IsShortLink reports whether link points at a redirecting short-link host.
func IsShortLink(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	return shortLinkHosts[strings.ToLower(u.Hostname())]
}

// ExpandShortLink follows the redirects of a short link with a HEAD
// request and returns the final URL.
func ExpandShortLink(ctx context.Context, client *http.Client, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, strings.TrimSpace(link), nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("expanding short link %s: %w", link, err)
	}
	resp.Body.Close()
	return resp.Request.URL.String(), nil
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
