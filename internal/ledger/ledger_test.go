package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"sabot-go/internal/sabot"
)

type failingStore struct {
	memoryStore
	fail bool
}

func (s *failingStore) Save(data []byte) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.memoryStore.Save(data)
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLedger_MarkSeen(t *testing.T) {
	l := NewMemoryLedger()

	if l.HasSeen(sabot.Microblog, "A1") {
		t.Fatal("HasSeen() = true on empty ledger")
	}
	for i := 0; i < 2; i++ {
		if err := l.MarkSeen(sabot.Microblog, "A1"); err != nil {
			t.Fatalf("MarkSeen() error = %v", err)
		}
	}
	if !l.HasSeen(sabot.Microblog, "A1") {
		t.Error("HasSeen() = false after MarkSeen")
	}
	if l.HasSeen(sabot.PhotoPost, "A1") {
		t.Error("HasSeen() leaked across platforms")
	}
	if got := l.SeenIDs(sabot.Microblog); !slices.Equal(got, []string{"A1"}) {
		t.Errorf("SeenIDs() = %v, want [A1]", got)
	}
}

func TestLedger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	media := filepath.Join(dir, "media", "microblog", "alice", "A1", "mb_A1_x.jpg")
	touch(t, media)

	l := NewFileLedger(path, sabot.NewNopLogger())
	if err := l.RegisterAccount(sabot.Microblog, "alice"); err != nil {
		t.Fatalf("RegisterAccount() error = %v", err)
	}
	if err := l.RecordMedia(sabot.Microblog, "alice", "A1", []string{media}); err != nil {
		t.Fatalf("RecordMedia() error = %v", err)
	}
	for _, id := range []string{"A1", "A2"} {
		if err := l.MarkSeen(sabot.Microblog, id); err != nil {
			t.Fatalf("MarkSeen(%q) error = %v", id, err)
		}
	}
	if err := l.MarkSeen(sabot.VideoHost, "BV1xx411c7mD"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	reopened := NewFileLedger(path, sabot.NewNopLogger())

	for _, id := range []string{"A1", "A2"} {
		if !reopened.HasSeen(sabot.Microblog, id) {
			t.Errorf("HasSeen(microblog, %q) = false after reload", id)
		}
	}
	if !reopened.HasSeen(sabot.VideoHost, "BV1xx411c7mD") {
		t.Error("video id lost after reload")
	}
	if got := reopened.LookupMedia(sabot.Microblog, "alice", "A1"); !slices.Equal(got, []string{media}) {
		t.Errorf("LookupMedia() = %v, want [%s]", got, media)
	}
	if got := reopened.Accounts(sabot.Microblog); !slices.Equal(got, []string{"alice"}) {
		t.Errorf("Accounts() = %v, want [alice]", got)
	}
}

func TestLedger_Load(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSeen []string
	}{
		{
			name:     "missing sections default to empty",
			content:  `{}`,
			wantSeen: nil,
		},
		{
			name:     "malformed file resets",
			content:  `{"microblog_posts": ["A1"`,
			wantSeen: nil,
		},
		{
			name:     "malformed section keeps the rest",
			content:  `{"microblog_posts": ["A1"], "media_mapping": "oops"}`,
			wantSeen: []string{"A1"},
		},
		{
			name:     "legacy key names",
			content:  `{"x_posts": ["A1", "A1", "A2"], "instagram_stories": ["S1"]}`,
			wantSeen: []string{"A1", "A2"},
		},
		{
			name:     "empty file",
			content:  "",
			wantSeen: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			l := NewFileLedger(path, sabot.NewNopLogger())

			if got := l.SeenIDs(sabot.Microblog); !slices.Equal(got, tt.wantSeen) {
				t.Errorf("SeenIDs() = %v, want %v", got, tt.wantSeen)
			}
			if got := l.Accounts(sabot.Microblog); len(got) != 0 {
				t.Errorf("Accounts() = %v, want empty", got)
			}
		})
	}

	t.Run("legacy story key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.json")
		os.WriteFile(path, []byte(`{"instagram_stories": ["S1"]}`), 0644)

		l := NewFileLedger(path, sabot.NewNopLogger())
		if !l.HasSeen(sabot.PhotoStory, "S1") {
			t.Error("HasSeen(photo_story, S1) = false")
		}
	})
}

func TestLedger_SaveFailure(t *testing.T) {
	st := &failingStore{}
	l := open(st, sabot.NewNopLogger())
	st.fail = true

	if err := l.MarkSeen(sabot.Microblog, "A1"); err == nil {
		t.Fatal("MarkSeen() error = nil, want error")
	}
	if l.HasSeen(sabot.Microblog, "A1") {
		t.Error("HasSeen() = true after failed write")
	}
	if err := l.RecordMedia(sabot.Microblog, "alice", "A1", []string{"/x.jpg"}); err == nil {
		t.Fatal("RecordMedia() error = nil, want error")
	}
	if _, ok := l.MappedMedia(sabot.Microblog, "alice", "A1"); ok {
		t.Error("mapping visible after failed write")
	}

	st.fail = false
	if err := l.MarkSeen(sabot.Microblog, "A1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if !l.HasSeen(sabot.Microblog, "A1") {
		t.Error("HasSeen() = false after recovered write")
	}
}

func TestLedger_Purge(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "A1.jpg")
	touch(t, media)

	l := NewMemoryLedger()
	l.RecordMedia(sabot.PhotoPost, "bob", "A1", []string{media})
	l.MarkSeen(sabot.PhotoPost, "A1")

	if err := l.Purge(sabot.PhotoPost, "bob", "A1"); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if !l.HasSeen(sabot.PhotoPost, "A1") {
		t.Error("HasSeen() = false after Purge")
	}
	if got := l.LookupMedia(sabot.PhotoPost, "bob", "A1"); len(got) != 0 {
		t.Errorf("LookupMedia() = %v after Purge, want empty", got)
	}
	if err := l.Purge(sabot.PhotoPost, "bob", "A1"); err != nil {
		t.Errorf("second Purge() error = %v", err)
	}
}

func TestLedger_RecordMediaEmptyRemovesMapping(t *testing.T) {
	st := &failingStore{}
	l := open(st, sabot.NewNopLogger())

	if err := l.RecordMedia(sabot.PhotoPost, "bob", "A1", []string{"/gone/x.jpg"}); err != nil {
		t.Fatalf("RecordMedia() error = %v", err)
	}
	if err := l.RecordMedia(sabot.PhotoPost, "bob", "A1", nil); err != nil {
		t.Fatalf("RecordMedia(nil) error = %v", err)
	}
	if got, ok := l.MappedMedia(sabot.PhotoPost, "bob", "A1"); ok {
		t.Errorf("MappedMedia() = %v, true after empty RecordMedia, want no mapping", got)
	}
	if got := l.MappedIDs(sabot.PhotoPost, "bob"); len(got) != 0 {
		t.Errorf("MappedIDs() = %v, want none", got)
	}

	st.fail = true
	if err := l.RecordMedia(sabot.PhotoPost, "bob", "A2", nil); err != nil {
		t.Errorf("RecordMedia(nil) on unmapped item error = %v, want no write", err)
	}
}

func TestLedger_MarkSeenTwiceSkipsWrite(t *testing.T) {
	st := &failingStore{}
	l := open(st, sabot.NewNopLogger())
	if err := l.MarkSeen(sabot.News, "n1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	st.fail = true
	if err := l.MarkSeen(sabot.News, "n1"); err != nil {
		t.Errorf("repeated MarkSeen() error = %v, want no write", err)
	}
	if err := l.MarkSeen(sabot.News, "n2"); err == nil {
		t.Error("MarkSeen() of a new id error = nil, want save failure")
	}
}

func TestLedger_LookupMediaFiltersMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.jpg")
	touch(t, present)
	missing := filepath.Join(dir, "b.jpg")

	l := NewMemoryLedger()
	l.RecordMedia(sabot.Microblog, "alice", "A1", []string{present, missing})

	if got := l.LookupMedia(sabot.Microblog, "alice", "A1"); !slices.Equal(got, []string{present}) {
		t.Errorf("LookupMedia() = %v, want [%s]", got, present)
	}
	if got, _ := l.MappedMedia(sabot.Microblog, "alice", "A1"); len(got) != 2 {
		t.Errorf("MappedMedia() = %v, stale entry should be kept", got)
	}
}

func TestLedger_MappedIDs(t *testing.T) {
	l := NewMemoryLedger()
	for _, id := range []string{"c", "a", "b"} {
		l.MarkSeen(sabot.Microblog, id)
	}
	l.RecordMedia(sabot.Microblog, "alice", "b", []string{"/b.jpg"})
	l.RecordMedia(sabot.Microblog, "alice", "c", []string{"/c.jpg"})
	l.RecordMedia(sabot.Microblog, "alice", "z", []string{"/z.jpg"})
	l.RecordMedia(sabot.Microblog, "carol", "a", []string{"/a.jpg"})

	want := []string{"c", "b", "z"}
	if got := l.MappedIDs(sabot.Microblog, "alice"); !slices.Equal(got, want) {
		t.Errorf("MappedIDs() = %v, want %v", got, want)
	}
	if got := l.MappedIDs(sabot.Microblog, "nobody"); got != nil {
		t.Errorf("MappedIDs(nobody) = %v, want nil", got)
	}
}

func TestLedger_AccountsWithSeparators(t *testing.T) {
	l := NewMemoryLedger()
	l.RecordMedia(sabot.Microblog, "a_b", "c", []string{"/1.jpg"})
	l.RecordMedia(sabot.Microblog, "a", "b_c", []string{"/2.jpg"})

	got1, _ := l.MappedMedia(sabot.Microblog, "a_b", "c")
	got2, _ := l.MappedMedia(sabot.Microblog, "a", "b_c")
	if !slices.Equal(got1, []string{"/1.jpg"}) || !slices.Equal(got2, []string{"/2.jpg"}) {
		t.Errorf("mappings collided: %v, %v", got1, got2)
	}
}

func TestLedger_ConcurrentMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := NewFileLedger(path, sabot.NewNopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", i)
			if err := l.MarkSeen(sabot.Microblog, id); err != nil {
				t.Errorf("MarkSeen(%q) error = %v", id, err)
			}
			l.RegisterAccount(sabot.Microblog, fmt.Sprintf("acct-%d", i%4))
		}(i)
	}
	wg.Wait()

	reopened := NewFileLedger(path, sabot.NewNopLogger())
	if got := len(reopened.SeenIDs(sabot.Microblog)); got != 40 {
		t.Errorf("SeenIDs() len = %d after reload, want 40", got)
	}
	if got := len(reopened.Accounts(sabot.Microblog)); got != 4 {
		t.Errorf("Accounts() len = %d after reload, want 4", got)
	}
}

func TestLedger_SnapshotRestore(t *testing.T) {
	src := NewMemoryLedger()
	src.MarkSeen(sabot.News, "n1")
	src.RegisterAccount(sabot.News, "daily")
	src.RecordMedia(sabot.News, "daily", "n1", []string{"/n1.jpg"})

	var buf bytes.Buffer
	if err := src.Snapshot(&buf); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	dst := NewMemoryLedger()
	dst.MarkSeen(sabot.News, "old")
	if err := dst.Restore(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if dst.HasSeen(sabot.News, "old") {
		t.Error("Restore() kept state that was not in the snapshot")
	}
	if !dst.HasSeen(sabot.News, "n1") {
		t.Error("HasSeen(n1) = false after Restore")
	}
	if got, _ := dst.MappedMedia(sabot.News, "daily", "n1"); !slices.Equal(got, []string{"/n1.jpg"}) {
		t.Errorf("MappedMedia() = %v after Restore", got)
	}

	if err := dst.Restore(bytes.NewReader([]byte("not json"))); err == nil {
		t.Error("Restore(garbage) error = nil, want error")
	}
	if !dst.HasSeen(sabot.News, "n1") {
		t.Error("failed Restore() changed state")
	}
}

func TestLedger_ImportLegacyVideos(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "sent_videos.json")
	if err := os.WriteFile(legacy, []byte(`{"videos": ["BV1", "BV2"]}`), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	l := NewMemoryLedger()
	l.MarkSeen(sabot.VideoHost, "BV1")

	added, err := l.ImportLegacyVideos(legacy)
	if err != nil {
		t.Fatalf("ImportLegacyVideos() error = %v", err)
	}
	if added != 1 {
		t.Errorf("ImportLegacyVideos() added = %d, want 1", added)
	}
	if !l.HasSeen(sabot.VideoHost, "BV2") {
		t.Error("HasSeen(BV2) = false after import")
	}

	added, err = l.ImportLegacyVideos(filepath.Join(dir, "missing.json"))
	if err != nil || added != 0 {
		t.Errorf("ImportLegacyVideos(missing) = %d, %v; want 0, nil", added, err)
	}
}
