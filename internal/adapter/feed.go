package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"sabot-go/internal/sabot"
)

// Feed reads an account's recent posts from an RSS, Atom or JSON feed.
// Media comes from enclosures, the feed item image and any <img> or
// <video> elements in the item's HTML description.
type Feed struct {
	platform    sabot.Platform
	urlTemplate string
	limit       int
	parser      *gofeed.Parser
}

var _ sabot.Adapter = (*Feed)(nil)

// NewFeed creates a Feed adapter. urlTemplate contains "{account}".
func NewFeed(platform sabot.Platform, urlTemplate string, limit int, client *http.Client) *Feed {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &Feed{
		platform:    platform,
		urlTemplate: urlTemplate,
		limit:       limit,
		parser:      parser,
	}
}

func (f *Feed) Fetch(ctx context.Context, account string) ([]sabot.ContentItem, error) {
	feedURL := expandTemplate(f.urlTemplate, account)
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	var items []sabot.ContentItem
	for _, it := range feed.Items {
		if f.limit > 0 && len(items) >= f.limit {
			break
		}
		id := feedItemID(it)
		if id == "" {
			continue
		}
		text, refs := parseDescription(firstNonEmpty(it.Content, it.Description))
		if text == "" {
			text = strings.TrimSpace(it.Title)
		}
		items = append(items, sabot.ContentItem{
			Platform:  f.platform,
			Account:   account,
			ContentID: id,
			Caption:   fmt.Sprintf("New post from @%s:\n\n%s", strings.TrimPrefix(account, "@"), text),
			SourceURL: it.Link,
			Media:     dedupRefs(append(feedRefs(it), refs...)),
		})
	}
	return items, nil
}

func feedItemID(it *gofeed.Item) string {
	if id := ContentIDFromLink(it.Link); id != "" {
		return id
	}
	if it.GUID != "" {
		if id := ContentIDFromLink(it.GUID); id != "" {
			return id
		}
		return LinkHash(it.GUID)
	}
	if it.Link != "" {
		return LinkHash(it.Link)
	}
	return ""
}

func feedRefs(it *gofeed.Item) []sabot.MediaRef {
	var refs []sabot.MediaRef
	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		switch {
		case strings.HasPrefix(enc.Type, "image/"):
			refs = append(refs, sabot.MediaRef{URL: enc.URL, Kind: sabot.Photo})
		case strings.HasPrefix(enc.Type, "video/"):
			refs = append(refs, sabot.MediaRef{URL: enc.URL, Kind: sabot.Video})
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		refs = append(refs, sabot.MediaRef{URL: it.Image.URL, Kind: sabot.Photo})
	}
	return refs
}

// parseDescription returns the plain text of an HTML fragment and the
// media it embeds.
func parseDescription(html string) (string, []sabot.MediaRef) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html), nil
	}

	var refs []sabot.MediaRef
	doc.Find("video").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			refs = append(refs, sabot.MediaRef{URL: src, Kind: sabot.Video})
			return
		}
		if src, ok := s.Find("source").First().Attr("src"); ok && src != "" {
			refs = append(refs, sabot.MediaRef{URL: src, Kind: sabot.Video})
		}
	})
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			refs = append(refs, sabot.MediaRef{URL: src, Kind: sabot.Photo})
		}
	})

	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text()), refs
}

func dedupRefs(refs []sabot.MediaRef) []sabot.MediaRef {
	seen := make(map[string]bool, len(refs))
	var out []sabot.MediaRef
	for _, r := range refs {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
	}
	return out
}

func expandTemplate(tmpl, account string) string {
	return strings.ReplaceAll(tmpl, "{account}", url.PathEscape(strings.TrimPrefix(account, "@")))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
