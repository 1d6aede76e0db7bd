package sabot

import (
	"fmt"
	"strings"
)

// Platform identifies a content-source family. The value is used as the
// ledger namespace and as the first path component under the media root.
type Platform string

const (
	Microblog  Platform = "microblog"
	PhotoPost  Platform = "photo_post"
	PhotoStory Platform = "photo_story"
	VideoHost  Platform = "video_host"
	News       Platform = "news"
)

// Platforms lists every known platform in display order.
var Platforms = []Platform{Microblog, PhotoPost, PhotoStory, VideoHost, News}

var platformPrefixes = map[Platform]string{
	Microblog:  "mb",
	PhotoPost:  "post",
	PhotoStory: "story",
	VideoHost:  "video",
	News:       "news",
}

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := platformPrefixes[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return p, nil
}

// Prefix returns the filename prefix used for media of this platform.
// Unknown platforms fall back to their own name.
func (p Platform) Prefix() string {
	if prefix, ok := platformPrefixes[p]; ok {
		return prefix
	}
	return string(p)
}

// PageSize returns the history browsing page size for the platform.
func (p Platform) PageSize() int {
	if p == News {
		return NewsPageSize
	}
	return PostPageSize
}

func (p Platform) String() string { return string(p) }

// MediaKind is the kind of a media reference or stored media file.
type MediaKind string

const (
	Photo MediaKind = "photo"
	Video MediaKind = "video"
)

// DefaultExt returns the extension used when a URL does not carry one.
func (k MediaKind) DefaultExt() string {
	if k == Video {
		return ".mp4"
	}
	return ".jpg"
}
