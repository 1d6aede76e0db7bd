package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabot-go/internal/sabot"
)

type fakeSender struct {
	sent   []tgbotapi.Chattable
	groups []tgbotapi.MediaGroupConfig
	err    error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.groups = append(f.groups, c)
	return nil, nil
}

func newTestTelegram() (*Telegram, *fakeSender) {
	s := &fakeSender{}
	return &Telegram{bot: s, chatID: 42, logger: sabot.NewNopLogger()}, s
}

func photos(n int) []sabot.MediaFile {
	files := make([]sabot.MediaFile, n)
	for i := range files {
		files[i] = sabot.MediaFile{Path: fmt.Sprintf("/m/%d.jpg", i), Kind: sabot.Photo}
	}
	return files
}

func TestTelegram_DeliverText(t *testing.T) {
	tg, s := newTestTelegram()

	err := tg.Deliver(context.Background(), sabot.Message{
		Caption:  "hello",
		Delivery: sabot.DeliveredNoMedia{Note: sabot.MediaUnavailableNote},
	})
	require.NoError(t, err)

	require.Len(t, s.sent, 1)
	m, ok := s.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok, "sent %T, want MessageConfig", s.sent[0])
	assert.Equal(t, int64(42), m.ChatID)
	assert.Equal(t, "hello\n\n"+sabot.MediaUnavailableNote, m.Text)
}

func TestTelegram_DeliverEmptyMessage(t *testing.T) {
	tg, s := newTestTelegram()

	err := tg.Deliver(context.Background(), sabot.Message{
		Platform: sabot.News,
		Account:  "frontpage",
		Delivery: sabot.DeliveredNoMedia{},
	})
	require.NoError(t, err)

	m := s.sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, m.Text, "frontpage")
}

func TestTelegram_DeliverSingle(t *testing.T) {
	t.Run("photo", func(t *testing.T) {
		tg, s := newTestTelegram()
		err := tg.Deliver(context.Background(), sabot.Message{
			Caption:  "pic",
			Delivery: sabot.Delivered{Files: photos(1)},
		})
		require.NoError(t, err)

		require.Len(t, s.sent, 1)
		p, ok := s.sent[0].(tgbotapi.PhotoConfig)
		require.True(t, ok, "sent %T, want PhotoConfig", s.sent[0])
		assert.Equal(t, "pic", p.Caption)
		assert.Equal(t, tgbotapi.FilePath("/m/0.jpg"), p.File)
	})

	t.Run("video", func(t *testing.T) {
		tg, s := newTestTelegram()
		err := tg.Deliver(context.Background(), sabot.Message{
			Caption:  "clip",
			Delivery: sabot.Delivered{Files: []sabot.MediaFile{{Path: "/m/v.mp4", Kind: sabot.Video}}},
		})
		require.NoError(t, err)

		v, ok := s.sent[0].(tgbotapi.VideoConfig)
		require.True(t, ok, "sent %T, want VideoConfig", s.sent[0])
		assert.Equal(t, "clip", v.Caption)
	})

	t.Run("long caption follows as text", func(t *testing.T) {
		tg, s := newTestTelegram()
		long := strings.Repeat("x", maxCaptionLen+1)
		err := tg.Deliver(context.Background(), sabot.Message{
			Caption:  long,
			Delivery: sabot.Delivered{Files: photos(1)},
		})
		require.NoError(t, err)

		require.Len(t, s.sent, 2)
		assert.Empty(t, s.sent[0].(tgbotapi.PhotoConfig).Caption)
		assert.Equal(t, long, s.sent[1].(tgbotapi.MessageConfig).Text)
	})
}

func TestTelegram_DeliverGroups(t *testing.T) {
	tg, s := newTestTelegram()

	err := tg.Deliver(context.Background(), sabot.Message{
		Caption:  "album",
		Delivery: sabot.Delivered{Files: photos(21)},
	})
	require.NoError(t, err)

	require.Len(t, s.groups, 2)
	assert.Len(t, s.groups[0].Media, 10)
	assert.Len(t, s.groups[1].Media, 10)
	first := s.groups[0].Media[0].(tgbotapi.InputMediaPhoto)
	assert.Equal(t, "album", first.Caption)
	second := s.groups[1].Media[0].(tgbotapi.InputMediaPhoto)
	assert.Empty(t, second.Caption)

	require.Len(t, s.sent, 1, "trailing single file is sent on its own")
	assert.Equal(t, tgbotapi.FilePath("/m/20.jpg"), s.sent[0].(tgbotapi.PhotoConfig).File)
}

func TestTelegram_DeliverError(t *testing.T) {
	tg, s := newTestTelegram()
	s.err = errors.New("429 too many requests")

	err := tg.Deliver(context.Background(), sabot.Message{Caption: "x", Delivery: sabot.DeliveredNoMedia{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegram_Notify(t *testing.T) {
	tg, s := newTestTelegram()

	require.NoError(t, tg.Notify(context.Background(), "Poller: fetch failed"))
	assert.Equal(t, "Poller: fetch failed", s.sent[0].(tgbotapi.MessageConfig).Text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tg.Notify(ctx, "late"), context.Canceled)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "жж…", truncate("жжжж", 3))
}
