package sabot_test

import (
	"reflect"
	"strings"
	"testing"

	"sabot-go/internal/sabot"
)

func TestMediaFilename(t *testing.T) {
	tests := []struct {
		name       string
		platform   sabot.Platform
		id         string
		ref        sabot.MediaRef
		wantPrefix string
		wantExt    string
	}{
		{
			name:       "photo with extension",
			platform:   sabot.PhotoPost,
			id:         "A1",
			ref:        sabot.MediaRef{URL: "http://x/1.jpg", Kind: sabot.Photo},
			wantPrefix: "post_A1_0_",
			wantExt:    ".jpg",
		},
		{
			name:       "jpeg normalized",
			platform:   sabot.Microblog,
			id:         "9",
			ref:        sabot.MediaRef{URL: "https://cdn/a/b.JPEG?size=large", Kind: sabot.Photo},
			wantPrefix: "mb_9_0_",
			wantExt:    ".jpg",
		},
		{
			name:       "video without extension",
			platform:   sabot.PhotoStory,
			id:         "s1",
			ref:        sabot.MediaRef{URL: "https://cdn/stream?id=4", Kind: sabot.Video},
			wantPrefix: "story_s1_0_",
			wantExt:    ".mp4",
		},
		{
			name:       "merged streams use default extension",
			platform:   sabot.VideoHost,
			id:         "BV1",
			ref:        sabot.MediaRef{URL: "https://cdn/v.m4s", AudioURL: "https://cdn/a.m4s", Kind: sabot.Video},
			wantPrefix: "video_BV1_0_",
			wantExt:    ".mp4",
		},
		{
			name:       "id sanitized",
			platform:   sabot.News,
			id:         "a/b",
			ref:        sabot.MediaRef{URL: "https://cdn/x.png", Kind: sabot.Photo},
			wantPrefix: "news_a_b_0_",
			wantExt:    ".png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sabot.MediaFilename(tt.platform, tt.id, 0, tt.ref)
			if !strings.HasPrefix(got, tt.wantPrefix) || !strings.HasSuffix(got, tt.wantExt) {
				t.Errorf("MediaFilename() = %q, want %s<token>%s", got, tt.wantPrefix, tt.wantExt)
			}
			if strings.ContainsAny(got, `/\`) {
				t.Errorf("MediaFilename() = %q contains a separator", got)
			}
		})
	}
}

func TestMediaFilename_Stability(t *testing.T) {
	photo := func(url string) sabot.MediaRef { return sabot.MediaRef{URL: url, Kind: sabot.Photo} }

	a := sabot.MediaFilename(sabot.PhotoPost, "A1", 0, photo("https://cdn/p.jpg?sig=1"))
	b := sabot.MediaFilename(sabot.PhotoPost, "A1", 0, photo("https://cdn/p.jpg?sig=2"))
	if a != b {
		t.Errorf("rotating query changed filename: %q vs %q", a, b)
	}
	if c := sabot.MediaFilename(sabot.PhotoPost, "A1", 0, photo("https://cdn/q.jpg")); a == c {
		t.Errorf("different paths share filename %q", a)
	}

	first := sabot.MediaFilename(sabot.PhotoPost, "A1", 0, photo("https://cdn/img.php?id=1"))
	second := sabot.MediaFilename(sabot.PhotoPost, "A1", 1, photo("https://cdn/img.php?id=2"))
	if first == second {
		t.Errorf("refs at different positions share filename %q", first)
	}
}

func TestSanitizeComponent(t *testing.T) {
	tests := map[string]string{
		"alice":   "alice",
		"a/b\\c":  "a_b_c",
		"":        "_",
		".":       "_",
		"..":      "_",
		"  bob  ": "bob",
	}
	for in, want := range tests {
		if got := sabot.SanitizeComponent(in); got != want {
			t.Errorf("SanitizeComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAccountVariants(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"alice", []string{"alice"}},
		{"@Alice", []string{"@Alice", "@alice", "Alice", "alice"}},
		{"john.doe", []string{"john.doe", "john_doe"}},
		{"Jane_D", []string{"Jane_D", "jane_d", "Jane.D", "jane.d"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sabot.AccountVariants(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AccountVariants(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	if p, err := sabot.ParsePlatform(" Photo_Post "); err != nil || p != sabot.PhotoPost {
		t.Errorf("ParsePlatform() = %q, %v", p, err)
	}
	if _, err := sabot.ParsePlatform("myspace"); err == nil {
		t.Error("ParsePlatform(myspace) error = nil")
	}
	if sabot.News.PageSize() != 10 || sabot.PhotoPost.PageSize() != 5 {
		t.Error("unexpected page sizes")
	}
}
