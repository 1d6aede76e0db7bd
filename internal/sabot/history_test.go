package sabot_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"sabot-go/internal/config"
	"sabot-go/internal/ledger"
	"sabot-go/internal/media"
	"sabot-go/internal/sabot"
)

func newTestHistory(t *testing.T, defaults map[sabot.Platform]string) (*sabot.History, *ledger.Ledger, *media.Store) {
	t.Helper()
	store, err := media.NewStore(config.MediaConfig{Root: filepath.Join(t.TempDir(), "media")}, nil, sabot.NewNopLogger())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	l := ledger.NewMemoryLedger()
	return sabot.NewHistory(l, store, defaults, sabot.NewNopLogger()), l, store
}

func writeMedia(t *testing.T, store *media.Store, platform sabot.Platform, account, id, name string) string {
	t.Helper()
	p, err := store.PathFor(platform, account, id, name)
	if err != nil {
		t.Fatalf("PathFor() error = %v", err)
	}
	if err := os.WriteFile(p, []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return p
}

func TestHistory_ListAccounts(t *testing.T) {
	t.Run("registered accounts first", func(t *testing.T) {
		h, l, store := newTestHistory(t, nil)
		writeMedia(t, store, sabot.PhotoPost, "scanned", "1", "a.jpg")
		_ = l.RegisterAccount(sabot.PhotoPost, "bob")
		_ = l.RegisterAccount(sabot.PhotoPost, "alice")

		if got := h.ListAccounts(sabot.PhotoPost); !reflect.DeepEqual(got, []string{"bob", "alice"}) {
			t.Errorf("ListAccounts() = %v, want [bob alice]", got)
		}
	})

	t.Run("falls back to media directories", func(t *testing.T) {
		h, _, store := newTestHistory(t, nil)
		writeMedia(t, store, sabot.PhotoPost, "scanned", "1", "a.jpg")

		if got := h.ListAccounts(sabot.PhotoPost); !reflect.DeepEqual(got, []string{"scanned"}) {
			t.Errorf("ListAccounts() = %v, want [scanned]", got)
		}
	})

	t.Run("falls back to default", func(t *testing.T) {
		h, _, _ := newTestHistory(t, map[sabot.Platform]string{sabot.News: "frontpage"})

		if got := h.ListAccounts(sabot.News); !reflect.DeepEqual(got, []string{"frontpage"}) {
			t.Errorf("ListAccounts() = %v, want [frontpage]", got)
		}
		if got := h.ListAccounts(sabot.Microblog); len(got) != 0 {
			t.Errorf("ListAccounts() = %v, want empty", got)
		}
	})
}

func TestHistory_ListContentIDs(t *testing.T) {
	h, l, _ := newTestHistory(t, nil)
	for _, id := range []string{"1", "2", "3"} {
		_ = l.MarkSeen(sabot.Microblog, id)
	}
	_ = l.RecordMedia(sabot.Microblog, "john_doe", "2", []string{"/m/2.jpg"})

	if got := h.ListContentIDs(sabot.Microblog, "john.doe"); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("ListContentIDs(variant) = %v, want [2]", got)
	}
	if got := h.ListContentIDs(sabot.Microblog, "nobody"); !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Errorf("ListContentIDs(unmapped) = %v, want all seen ids", got)
	}
}

func TestHistory_ResolveMedia(t *testing.T) {
	h, l, store := newTestHistory(t, nil)
	mapped := writeMedia(t, store, sabot.PhotoPost, "alice", "P1", "post_P1_aa.jpg")
	_ = l.RecordMedia(sabot.PhotoPost, "alice", "P1", []string{mapped})
	scanned := writeMedia(t, store, sabot.PhotoPost, "alice", "P2", "post_P2_bb.jpg")

	tests := []struct {
		name    string
		account string
		id      string
		want    []string
		wantErr bool
	}{
		{name: "ledger mapping", account: "alice", id: "P1", want: []string{mapped}},
		{name: "account variant", account: "@Alice", id: "P1", want: []string{mapped}},
		{name: "directory scan", account: "alice", id: "P2", want: []string{scanned}},
		{name: "nothing stored", account: "alice", id: "P3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.ResolveMedia(sabot.PhotoPost, tt.account, tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveMedia() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, sabot.ErrNoMedia) {
					t.Errorf("ResolveMedia() error = %v, want ErrNoMedia", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveMedia() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHistory_Repair(t *testing.T) {
	h, l, store := newTestHistory(t, nil)
	kept := writeMedia(t, store, sabot.PhotoPost, "alice", "K", "k.jpg")
	_ = l.RecordMedia(sabot.PhotoPost, "alice", "K", []string{kept})
	_ = l.RecordMedia(sabot.PhotoPost, "alice", "S", []string{filepath.Join(store.Root(), "gone.jpg")})

	removed, err := h.Repair(sabot.PhotoPost, "alice", "S")
	if err != nil || !removed {
		t.Fatalf("Repair(stale) = %v, %v, want true", removed, err)
	}
	if _, ok := l.MappedMedia(sabot.PhotoPost, "alice", "S"); ok {
		t.Error("stale mapping still present")
	}

	removed, err = h.Repair(sabot.PhotoPost, "alice", "K")
	if err != nil || removed {
		t.Errorf("Repair(present) = %v, %v, want false", removed, err)
	}
	removed, err = h.Repair(sabot.PhotoPost, "alice", "unknown")
	if err != nil || removed {
		t.Errorf("Repair(unknown) = %v, %v, want false", removed, err)
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 12)
	for i := range items {
		items[i] = i
	}

	tests := []struct {
		name      string
		index     int
		wantItems []int
		wantPrev  bool
		wantNext  bool
	}{
		{name: "first page", index: 0, wantItems: []int{0, 1, 2, 3, 4}, wantNext: true},
		{name: "middle page", index: 1, wantItems: []int{5, 6, 7, 8, 9}, wantPrev: true, wantNext: true},
		{name: "last page", index: 2, wantItems: []int{10, 11}, wantPrev: true},
		{name: "past the end", index: 3, wantPrev: true},
		{name: "negative", index: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sabot.Paginate(items, tt.index, sabot.PostPageSize)
			if !reflect.DeepEqual(p.Items, tt.wantItems) {
				t.Errorf("Items = %v, want %v", p.Items, tt.wantItems)
			}
			if p.HasPrev != tt.wantPrev || p.HasNext != tt.wantNext {
				t.Errorf("HasPrev, HasNext = %v, %v, want %v, %v", p.HasPrev, p.HasNext, tt.wantPrev, tt.wantNext)
			}
			if p.Pages != 3 || p.Total != 12 {
				t.Errorf("Pages, Total = %d, %d, want 3, 12", p.Pages, p.Total)
			}
		})
	}

	empty := sabot.Paginate([]string(nil), 0, 10)
	if empty.Pages != 0 || empty.HasNext || empty.HasPrev || len(empty.Items) != 0 {
		t.Errorf("Paginate(empty) = %+v", empty)
	}
}
