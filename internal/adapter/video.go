package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"

	"sabot-go/internal/sabot"
)

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// ytInfo is the part of yt-dlp's -J output the adapter reads.
type ytInfo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Uploader    string     `json:"uploader"`
	UploaderID  string     `json:"uploader_id"`
	WebpageURL  string     `json:"webpage_url"`
	URL         string     `json:"url"`
	Formats     []ytFormat `json:"formats"`
	Entries     []ytEntry  `json:"entries"`
	Type        string     `json:"_type"`
	Description string     `json:"description"`
}

type ytFormat struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	TBR      float64 `json:"tbr"`
	VBR      float64 `json:"vbr"`
	ABR      float64 `json:"abr"`
}

type ytEntry struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Video fetches long-form videos through yt-dlp. Fetch accepts either a
// single video link or an account; accounts are expanded to a channel
// listing through urlTemplate.
//
// Sites that serve audio and video separately yield one ref carrying both
// stream URLs. The video stream is picked by MiddleBandwidth and the audio
// stream by HighestBitrate.
type Video struct {
	platform    sabot.Platform
	binary      string
	urlTemplate string
	limit       int
	client      *http.Client
	run         runFunc
}

var _ sabot.LinkAdapter = (*Video)(nil)

// NewVideo creates a Video adapter. binary defaults to "yt-dlp".
func NewVideo(platform sabot.Platform, binary, urlTemplate string, limit int, client *http.Client) *Video {
	if binary == "" {
		binary = "yt-dlp"
	}
	if limit <= 0 {
		limit = 5
	}
	return &Video{
		platform:    platform,
		binary:      binary,
		urlTemplate: urlTemplate,
		limit:       limit,
		client:      client,
		run:         execOutput,
	}
}

// ContentIDFromLink resolves short links and extracts the video id.
func (v *Video) ContentIDFromLink(ctx context.Context, link string) (string, error) {
	full, err := v.expand(ctx, link)
	if err != nil {
		return "", err
	}
	if id, ok := VideoID(full); ok {
		return id, nil
	}
	return "", fmt.Errorf("no video id in %s", full)
}

func (v *Video) Fetch(ctx context.Context, account string) ([]sabot.ContentItem, error) {
	if looksLikeURL(account) {
		item, err := v.fetchOne(ctx, account)
		if err != nil {
			return nil, err
		}
		return []sabot.ContentItem{item}, nil
	}

	if v.urlTemplate == "" {
		return nil, fmt.Errorf("%q is not a video link and no channel url_template is configured", account)
	}
	listing := expandTemplate(v.urlTemplate, account)
	info, err := v.probe(ctx, "--flat-playlist", "--playlist-end", fmt.Sprint(v.limit), listing)
	if err != nil {
		return nil, err
	}

	var items []sabot.ContentItem
	var errs []error
	for _, e := range info.Entries {
		link := e.URL
		if link == "" {
			continue
		}
		item, err := v.fetchOne(ctx, link)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		item.Account = account
		items = append(items, item)
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func (v *Video) fetchOne(ctx context.Context, link string) (sabot.ContentItem, error) {
	full, err := v.expand(ctx, link)
	if err != nil {
		return sabot.ContentItem{}, err
	}
	info, err := v.probe(ctx, "--no-playlist", full)
	if err != nil {
		return sabot.ContentItem{}, err
	}

	source := firstNonEmpty(info.WebpageURL, full)
	id, ok := VideoID(source)
	if !ok {
		id = info.ID
	}
	if id == "" {
		return sabot.ContentItem{}, fmt.Errorf("no video id for %s", full)
	}

	uploader := firstNonEmpty(info.Uploader, info.UploaderID, "unknown")
	item := sabot.ContentItem{
		Platform:  v.platform,
		Account:   uploader,
		ContentID: id,
		Caption:   fmt.Sprintf("New video from %s:\n\n%s", uploader, strings.TrimSpace(info.Title)),
		SourceURL: source,
	}
	if ref, ok := selectStreams(info); ok {
		item.Media = []sabot.MediaRef{ref}
	}
	return item, nil
}

func (v *Video) probe(ctx context.Context, args ...string) (*ytInfo, error) {
	full := append([]string{"-J", "--no-warnings"}, args...)
	out, err := v.run(ctx, v.binary, full...)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", v.binary, err)
	}
	var info ytInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", v.binary, err)
	}
	return &info, nil
}

func (v *Video) expand(ctx context.Context, link string) (string, error) {
	if !IsShortLink(link) {
		return strings.TrimSpace(link), nil
	}
	return ExpandShortLink(ctx, v.client, link)
}

// selectStreams picks the media ref for a probed video: separate video and
// audio streams when the site offers them, else the best combined format.
func selectStreams(info *ytInfo) (sabot.MediaRef, bool) {
	var videoOnly, audioOnly, combined []Variant
	for _, f := range info.Formats {
		if f.URL == "" {
			continue
		}
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		switch {
		case hasVideo && !hasAudio:
			videoOnly = append(videoOnly, Variant{URL: f.URL, Bitrate: firstPositive(f.VBR, f.TBR)})
		case hasAudio && !hasVideo:
			audioOnly = append(audioOnly, Variant{URL: f.URL, Bitrate: firstPositive(f.ABR, f.TBR)})
		case hasVideo && hasAudio:
			combined = append(combined, Variant{URL: f.URL, Bitrate: f.TBR})
		}
	}

	if video, ok := MiddleBandwidth(videoOnly); ok {
		if audio, ok := HighestBitrate(audioOnly); ok {
			return sabot.MediaRef{URL: video.URL, AudioURL: audio.URL, Kind: sabot.Video}, true
		}
	}
	if best, ok := HighestBitrate(combined); ok {
		return sabot.MediaRef{URL: best.URL, Kind: sabot.Video}, true
	}
	if info.URL != "" {
		return sabot.MediaRef{URL: info.URL, Kind: sabot.Video}, true
	}
	if video, ok := MiddleBandwidth(videoOnly); ok {
		return sabot.MediaRef{URL: video.URL, Kind: sabot.Video}, true
	}
	return sabot.MediaRef{}, false
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
