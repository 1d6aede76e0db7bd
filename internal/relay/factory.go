package relay

import (
	"fmt"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

// NewRelayFromConfig creates the relay selected by cfg.Type.
func NewRelayFromConfig(cfg config.RelayConfig, secrets *config.Secrets, logger sabot.Logger) (sabot.Relay, error) {
	if secrets == nil {
		secrets = &config.Secrets{}
	}

	switch cfg.Type {
	case "telegram":
		t, err := NewTelegram(secrets.TelegramToken, secrets.TelegramChatID, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis relay requires redis_addr to be set")
		}
		if cfg.RedisChannel == "" {
			return nil, fmt.Errorf("redis relay requires redis_channel to be set")
		}
		client, err := NewRedisClient(cfg.RedisAddr, secrets.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.RedisChannel, cfg.RequireSubscriber, logger), nil
	case "log", "":
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown relay type: %q", cfg.Type)
	}
}
