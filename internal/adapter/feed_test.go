package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabot-go/internal/sabot"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>alice</title>
  <item>
    <title>Short title</title>
    <link>https://x.com/alice/status/1001</link>
    <guid>https://x.com/alice/status/1001</guid>
    <description><![CDATA[Hello<br>world <img src="https://pbs.example.com/media/a.jpg?name=orig"><video src="https://video.example.com/v.mp4" poster="https://pbs.example.com/p.jpg"></video>]]></description>
  </item>
  <item>
    <title>Text only</title>
    <link>https://x.com/alice/status/1000</link>
    <enclosure url="https://pbs.example.com/media/b.png" type="image/png" length="10"/>
  </item>
  <item>
    <title>No link</title>
    <guid isPermaLink="false">tag:example.com,2024:abc</guid>
  </item>
</channel>
</rss>`

func TestFeed_Fetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS))
	}))
	defer srv.Close()

	f := NewFeed(sabot.Microblog, srv.URL+"/twitter/user/{account}", 0, srv.Client())
	items, err := f.Fetch(context.Background(), "@alice")
	require.NoError(t, err)
	assert.Equal(t, "/twitter/user/alice", gotPath)
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, "1001", first.ContentID)
	assert.Equal(t, sabot.Microblog, first.Platform)
	assert.Equal(t, "https://x.com/alice/status/1001", first.SourceURL)
	assert.True(t, strings.HasPrefix(first.Caption, "New post from @alice:\n\nHello\nworld"), "caption = %q", first.Caption)
	assert.ElementsMatch(t, []sabot.MediaRef{
		{URL: "https://video.example.com/v.mp4", Kind: sabot.Video},
		{URL: "https://pbs.example.com/media/a.jpg?name=orig", Kind: sabot.Photo},
	}, first.Media)

	second := items[1]
	assert.Equal(t, "1000", second.ContentID)
	assert.Contains(t, second.Caption, "Text only")
	require.Len(t, second.Media, 1)
	assert.Equal(t, sabot.Photo, second.Media[0].Kind)

	assert.Equal(t, LinkHash("tag:example.com,2024:abc"), items[2].ContentID)
}

func TestFeed_FetchLimitAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		w.Write([]byte(testRSS))
	}))
	defer srv.Close()

	f := NewFeed(sabot.Microblog, srv.URL+"/{account}", 1, srv.Client())
	items, err := f.Fetch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = f.Fetch(context.Background(), "broken")
	assert.Error(t, err)
}
