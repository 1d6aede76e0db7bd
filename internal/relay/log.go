package relay

import (
	"context"

	"sabot-go/internal/sabot"
)

// Log writes messages to the logger instead of delivering them. Useful for
// dry runs.
type Log struct {
	logger sabot.Logger
}

var _ sabot.Relay = (*Log)(nil)

func NewLog(logger sabot.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Deliver(_ context.Context, msg sabot.Message) error {
	paths := make([]string, 0, len(msg.Files()))
	for _, f := range msg.Files() {
		paths = append(paths, f.Path)
	}
	l.logger.Info("relay message", "platform", msg.Platform, "account", msg.Account, "text", msg.Text(), "files", paths)
	return nil
}

func (l *Log) Notify(_ context.Context, text string) error {
	l.logger.Info("relay notice", "text", text)
	return nil
}
