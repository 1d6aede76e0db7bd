package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

// Selectors locate content items on an HTML listing page.
type Selectors struct {
	Item  string // one match per content item
	Link  string // within an item; defaults to the first <a href>
	Title string // within an item; defaults to the link text
	Image string // within an item; defaults to <img>
}

// Page scrapes a listing page with CSS selectors. Each matched item
// becomes a content item keyed by its link.
type Page struct {
	platform    sabot.Platform
	urlTemplate string
	selectors   Selectors
	limit       int
	client      *http.Client
}

var _ sabot.Adapter = (*Page)(nil)

// NewPage creates a Page adapter. urlTemplate may contain "{account}".
func NewPage(platform sabot.Platform, urlTemplate string, selectors Selectors, limit int, client *http.Client) *Page {
	if selectors.Link == "" {
		selectors.Link = "a[href]"
	}
	if selectors.Image == "" {
		selectors.Image = "img"
	}
	return &Page{
		platform:    platform,
		urlTemplate: urlTemplate,
		selectors:   selectors,
		limit:       limit,
		client:      client,
	}
}

func selectorsFromConfig(cfg config.SourceConfig) Selectors {
	return Selectors{
		Item:  cfg.ItemSelector,
		Link:  cfg.LinkSelector,
		Title: cfg.TitleSelector,
		Image: cfg.ImageSelector,
	}
}

func (p *Page) Fetch(ctx context.Context, account string) ([]sabot.ContentItem, error) {
	pageURL := expandTemplate(p.urlTemplate, account)
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url %s: %w", pageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching %s: unexpected status %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	var items []sabot.ContentItem
	seen := make(map[string]bool)
	doc.Find(p.selectors.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if p.limit > 0 && len(items) >= p.limit {
			return false
		}

		linkSel := s.Find(p.selectors.Link).First()
		if goquery.NodeName(s) == "a" {
			linkSel = s
		}
		href, ok := linkSel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		link := resolve(base, href)

		id := ContentIDFromLink(link)
		if id == "" {
			id = LinkHash(link)
		}
		if seen[id] {
			return true
		}
		seen[id] = true

		title := strings.TrimSpace(linkSel.Text())
		if p.selectors.Title != "" {
			if t := strings.TrimSpace(s.Find(p.selectors.Title).First().Text()); t != "" {
				title = t
			}
		}
		title = strings.Join(strings.Fields(title), " ")

		var refs []sabot.MediaRef
		s.Find(p.selectors.Image).Each(func(_ int, img *goquery.Selection) {
			src := firstNonEmpty(img.AttrOr("src", ""), img.AttrOr("data-src", ""))
			if src != "" && !strings.HasPrefix(src, "data:") {
				refs = append(refs, sabot.MediaRef{URL: resolve(base, src), Kind: sabot.Photo})
			}
		})

		items = append(items, sabot.ContentItem{
			Platform:  p.platform,
			Account:   account,
			ContentID: id,
			Caption:   title,
			SourceURL: link,
			Media:     dedupRefs(refs),
		})
		return true
	})
	return items, nil
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
