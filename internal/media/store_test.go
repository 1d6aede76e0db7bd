package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

type fakeTranscoder struct {
	err     error
	calls   int
	outPath string
}

func (f *fakeTranscoder) Merge(_ context.Context, videoPath, audioPath, outPath string) error {
	f.calls++
	f.outPath = outPath
	if f.err != nil {
		os.WriteFile(outPath, []byte("PARTIAL"), 0644)
		return f.err
	}
	v, _ := os.ReadFile(videoPath)
	a, _ := os.ReadFile(audioPath)
	return os.WriteFile(outPath, append(v, a...), 0644)
}

func newTestStore(t *testing.T, tc sabot.Transcoder) *Store {
	t.Helper()
	s, err := NewStore(config.MediaConfig{Root: filepath.Join(t.TempDir(), "media")}, tc, sabot.NewNopLogger())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	s.SetBackoff(time.Millisecond)
	return s
}

// newServer serves fixed bodies by path and counts requests per path.
func newServer(t *testing.T, bodies map[string]string) (*httptest.Server, map[string]*atomic.Int32) {
	t.Helper()
	hits := make(map[string]*atomic.Int32)
	for p := range bodies {
		hits[p] = &atomic.Int32{}
	}
	hits["/missing"] = &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := hits[r.URL.Path]; ok {
			c.Add(1)
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func TestStore_PathFor(t *testing.T) {
	s := newTestStore(t, nil)

	got, err := s.PathFor(sabot.Microblog, "alice", "A1", "mb_A1_abcd.jpg")
	if err != nil {
		t.Fatalf("PathFor() error = %v", err)
	}
	want := filepath.Join(s.Root(), "microblog", "alice", "A1", "mb_A1_abcd.jpg")
	if got != want {
		t.Errorf("PathFor() = %q, want %q", got, want)
	}
	if info, err := os.Stat(filepath.Dir(got)); err != nil || !info.IsDir() {
		t.Errorf("content directory not created: %v", err)
	}

	escaped, err := s.PathFor(sabot.Microblog, "../evil", "..", "x.jpg")
	if err != nil {
		t.Fatalf("PathFor() error = %v", err)
	}
	if !strings.HasPrefix(escaped, s.Root()+string(filepath.Separator)) {
		t.Errorf("PathFor() = %q escapes root %q", escaped, s.Root())
	}
}

func TestStore_Download(t *testing.T) {
	srv, hits := newServer(t, map[string]string{"/1.jpg": "jpeg-bytes"})

	t.Run("success", func(t *testing.T) {
		s := newTestStore(t, nil)
		dest, _ := s.PathFor(sabot.PhotoPost, "bob", "P1", "post_P1_x.jpg")

		if err := s.Download(context.Background(), srv.URL+"/1.jpg", dest); err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(data) != "jpeg-bytes" {
			t.Errorf("content = %q, want %q", data, "jpeg-bytes")
		}
	})

	t.Run("404 retried then fails", func(t *testing.T) {
		s := newTestStore(t, nil)
		dest, _ := s.PathFor(sabot.PhotoPost, "bob", "P2", "post_P2_x.jpg")
		before := hits["/missing"].Load()

		err := s.Download(context.Background(), srv.URL+"/missing", dest)
		if err == nil {
			t.Fatal("Download() error = nil, want error")
		}
		if got := hits["/missing"].Load() - before; got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
		if s.Exists(dest) {
			t.Error("destination exists after failed download")
		}
		entries, _ := os.ReadDir(filepath.Dir(dest))
		if len(entries) != 0 {
			t.Errorf("leftover files after failed download: %v", entries)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.SetBackoff(time.Hour)
		dest, _ := s.PathFor(sabot.PhotoPost, "bob", "P3", "post_P3_x.jpg")

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		err := s.Download(ctx, srv.URL+"/missing", dest)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Download() error = %v, want context.Canceled", err)
		}
	})
}

func TestStore_DownloadMerged(t *testing.T) {
	srv, _ := newServer(t, map[string]string{"/v.m4s": "VIDEO", "/a.m4s": "AUDIO"})

	tests := []struct {
		name       string
		audioPath  string
		transcoder *fakeTranscoder
		want       string
	}{
		{name: "merged", audioPath: "/a.m4s", transcoder: &fakeTranscoder{}, want: "VIDEOAUDIO"},
		{name: "merge fails keeps video", audioPath: "/a.m4s", transcoder: &fakeTranscoder{err: errors.New("ffmpeg exploded")}, want: "VIDEO"},
		{name: "audio missing keeps video", audioPath: "/missing", transcoder: &fakeTranscoder{}, want: "VIDEO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, tt.transcoder)
			dest, _ := s.PathFor(sabot.VideoHost, "up", "BV1", "video_BV1_x.mp4")

			if err := s.DownloadMerged(context.Background(), srv.URL+"/v.m4s", srv.URL+tt.audioPath, dest); err != nil {
				t.Fatalf("DownloadMerged() error = %v", err)
			}
			data, _ := os.ReadFile(dest)
			if string(data) != tt.want {
				t.Errorf("content = %q, want %q", data, tt.want)
			}
			files, _ := s.ScanContent(sabot.VideoHost, "up", "BV1")
			if !slices.Equal(files, []string{dest}) {
				t.Errorf("ScanContent() = %v, want only %s (temp streams removed)", files, dest)
			}
		})
	}

	t.Run("merge output staged away from dest", func(t *testing.T) {
		tc := &fakeTranscoder{}
		s := newTestStore(t, tc)
		dest, _ := s.PathFor(sabot.VideoHost, "up", "BV3", "video_BV3_0_x.mp4")

		if err := s.DownloadMerged(context.Background(), srv.URL+"/v.m4s", srv.URL+"/a.m4s", dest); err != nil {
			t.Fatalf("DownloadMerged() error = %v", err)
		}
		if tc.outPath == dest || filepath.Dir(tc.outPath) != filepath.Dir(dest) || filepath.Ext(tc.outPath) != ".mp4" {
			t.Errorf("merge output = %q, want a hidden .mp4 next to %q", tc.outPath, dest)
		}
		entries, _ := os.ReadDir(filepath.Dir(dest))
		if len(entries) != 1 || entries[0].Name() != filepath.Base(dest) {
			t.Errorf("content dir = %v, want only %s", entries, filepath.Base(dest))
		}
	})

	t.Run("interrupted merge never lands at dest", func(t *testing.T) {
		tc := &fakeTranscoder{err: errors.New("killed")}
		s := newTestStore(t, tc)
		dest, _ := s.PathFor(sabot.VideoHost, "up", "BV4", "video_BV4_0_x.mp4")

		if err := s.DownloadMerged(context.Background(), srv.URL+"/v.m4s", srv.URL+"/a.m4s", dest); err != nil {
			t.Fatalf("DownloadMerged() error = %v", err)
		}
		if data, _ := os.ReadFile(dest); string(data) != "VIDEO" {
			t.Errorf("dest = %q, want the video-only stream", data)
		}
		if _, err := os.Stat(tc.outPath); !os.IsNotExist(err) {
			t.Errorf("partial merge output left at %s", tc.outPath)
		}
	})

	t.Run("video missing fails", func(t *testing.T) {
		s := newTestStore(t, &fakeTranscoder{})
		dest, _ := s.PathFor(sabot.VideoHost, "up", "BV2", "video_BV2_x.mp4")
		if err := s.DownloadMerged(context.Background(), srv.URL+"/missing", srv.URL+"/a.m4s", dest); err == nil {
			t.Fatal("DownloadMerged() error = nil, want error")
		}
		if s.Exists(dest) {
			t.Error("destination exists after failed merge download")
		}
	})
}

func TestStore_Cleanup(t *testing.T) {
	s := newTestStore(t, nil)
	p1, _ := s.PathFor(sabot.Microblog, "alice", "A1", "a.jpg")
	p2, _ := s.PathFor(sabot.Microblog, "alice", "A1", "b.jpg")
	other, _ := s.PathFor(sabot.Microblog, "alice", "A2", "c.jpg")
	for _, p := range []string{p1, p2, other} {
		os.WriteFile(p, []byte("x"), 0644)
	}

	if err := s.Cleanup([]string{p1, p2, filepath.Join(filepath.Dir(p1), "gone.jpg")}); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(p1)); !os.IsNotExist(err) {
		t.Error("empty content directory not removed")
	}
	if !s.Exists(other) {
		t.Error("unrelated file removed")
	}

	if err := s.Cleanup([]string{other}); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "microblog", "alice")); !os.IsNotExist(err) {
		t.Error("empty account directory not removed")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "microblog")); err != nil {
		t.Errorf("platform directory removed: %v", err)
	}
}

func TestStore_Scan(t *testing.T) {
	s := newTestStore(t, nil)

	accounts, err := s.ScanAccounts(sabot.News)
	if err != nil || accounts != nil {
		t.Errorf("ScanAccounts() on empty store = %v, %v; want nil, nil", accounts, err)
	}

	for _, acct := range []string{"zeta", "alpha"} {
		p, _ := s.PathFor(sabot.News, acct, "n1", "news_n1_x.jpg")
		os.WriteFile(p, []byte("x"), 0644)
	}
	tmp, _ := s.PathFor(sabot.News, "alpha", "n1", "temp_video_x.m4s")
	os.WriteFile(tmp, []byte("x"), 0644)

	accounts, err = s.ScanAccounts(sabot.News)
	if err != nil {
		t.Fatalf("ScanAccounts() error = %v", err)
	}
	if !slices.Equal(accounts, []string{"alpha", "zeta"}) {
		t.Errorf("ScanAccounts() = %v, want [alpha zeta]", accounts)
	}

	files, err := s.ScanContent(sabot.News, "alpha", "n1")
	if err != nil {
		t.Fatalf("ScanContent() error = %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "news_n1_x.jpg" {
		t.Errorf("ScanContent() = %v, want the single media file", files)
	}
}
