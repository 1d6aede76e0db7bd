package adapter

import (
	"fmt"
	"net/http"
	"time"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// NewHTTPClient returns the client shared by adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewAdapterFromConfig creates the adapter described by one source entry.
func NewAdapterFromConfig(cfg config.SourceConfig, client *http.Client) (sabot.Platform, sabot.Adapter, error) {
	platform, err := sabot.ParsePlatform(cfg.Platform)
	if err != nil {
		return "", nil, err
	}

	switch cfg.Type {
	case "feed":
		if cfg.URLTemplate == "" {
			return "", nil, fmt.Errorf("feed source for %s requires url_template", platform)
		}
		return platform, NewFeed(platform, cfg.URLTemplate, cfg.Limit, client), nil
	case "page":
		if cfg.URLTemplate == "" || cfg.ItemSelector == "" {
			return "", nil, fmt.Errorf("page source for %s requires url_template and item_selector", platform)
		}
		return platform, NewPage(platform, cfg.URLTemplate, selectorsFromConfig(cfg), cfg.Limit, client), nil
	case "video":
		return platform, NewVideo(platform, cfg.YtDlpPath, cfg.URLTemplate, cfg.Limit, client), nil
	default:
		return "", nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}

// NewAdaptersFromConfig creates one adapter per configured source.
func NewAdaptersFromConfig(sources []config.SourceConfig, client *http.Client) (map[sabot.Platform]sabot.Adapter, error) {
	adapters := make(map[sabot.Platform]sabot.Adapter, len(sources))
	for _, src := range sources {
		platform, a, err := NewAdapterFromConfig(src, client)
		if err != nil {
			return nil, fmt.Errorf("creating %s source: %w", src.Platform, err)
		}
		if _, dup := adapters[platform]; dup {
			return nil, fmt.Errorf("duplicate source for platform %s", platform)
		}
		adapters[platform] = a
	}
	return adapters, nil
}
