package relay

import (
	"context"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sabot-go/internal/sabot"
)

const (
	maxCaptionLen = 1024
	maxTextLen    = 4096
	maxGroupSize  = 10
)

// sender is the part of tgbotapi.BotAPI the relay uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Telegram delivers messages to a single chat through the Bot API.
type Telegram struct {
	bot    sender
	chatID int64
	logger sabot.Logger
}

var _ sabot.Relay = (*Telegram)(nil)

// NewTelegram authenticates with the Bot API using token.
func NewTelegram(token string, chatID int64, logger sabot.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram relay requires a bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram relay requires a chat id")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// Deliver sends the message as a single photo or video, as media groups of
// up to ten files, or as plain text when there is no media. The caption
// rides on the first file when it fits, otherwise it follows as text.
func (t *Telegram) Deliver(ctx context.Context, msg sabot.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := msg.Text()
	files := msg.Files()
	if len(files) == 0 {
		return t.sendText(messageText(msg, text))
	}

	caption := text
	if utf8.RuneCountInString(caption) > maxCaptionLen {
		caption = ""
	}

	for start := 0; start < len(files); start += maxGroupSize {
		chunk := files[start:min(start+maxGroupSize, len(files))]
		chunkCaption := ""
		if start == 0 {
			chunkCaption = caption
		}

		var err error
		if len(chunk) == 1 {
			err = t.sendSingle(chunk[0], chunkCaption)
		} else {
			err = t.sendGroup(chunk, chunkCaption)
		}
		if err != nil {
			return err
		}
	}

	if caption == "" && text != "" {
		return t.sendText(text)
	}
	return nil
}

// Notify sends text to the chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.sendText(text)
}

func (t *Telegram) sendText(text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, truncate(text, maxTextLen))); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

func (t *Telegram) sendSingle(f sabot.MediaFile, caption string) error {
	var c tgbotapi.Chattable
	if f.Kind == sabot.Video {
		v := tgbotapi.NewVideo(t.chatID, tgbotapi.FilePath(f.Path))
		v.Caption = caption
		v.SupportsStreaming = true
		c = v
	} else {
		p := tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(f.Path))
		p.Caption = caption
		c = p
	}
	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("sending telegram %s %s: %w", f.Kind, f.Path, err)
	}
	return nil
}

func (t *Telegram) sendGroup(files []sabot.MediaFile, caption string) error {
	media := make([]any, 0, len(files))
	for i, f := range files {
		c := ""
		if i == 0 {
			c = caption
		}
		if f.Kind == sabot.Video {
			v := tgbotapi.NewInputMediaVideo(tgbotapi.FilePath(f.Path))
			v.Caption = c
			media = append(media, v)
		} else {
			p := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(f.Path))
			p.Caption = c
			media = append(media, p)
		}
	}
	if _, err := t.bot.SendMediaGroup(tgbotapi.NewMediaGroup(t.chatID, media)); err != nil {
		return fmt.Errorf("sending telegram media group of %d: %w", len(files), err)
	}
	return nil
}

// messageText returns text, or a short header when the message has neither
// caption nor media.
func messageText(msg sabot.Message, text string) string {
	if text != "" {
		return text
	}
	return fmt.Sprintf("New content from %s on %s", msg.Account, msg.Platform)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
