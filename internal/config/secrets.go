package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables holding credentials.
const (
	EnvTelegramToken  = "SABOT_TELEGRAM_TOKEN"
	EnvTelegramChatID = "SABOT_TELEGRAM_CHAT_ID"
	EnvRedisPassword  = "SABOT_REDIS_PASSWORD"
	EnvS3AccessKey    = "SABOT_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "SABOT_S3_SECRET_ACCESS_KEY"
)

// Secrets are credentials read from the environment, never from the
// config file.
type Secrets struct {
	TelegramToken  string
	TelegramChatID int64
	RedisPassword  string
	S3AccessKey    string
	S3SecretKey    string
}

// LoadSecrets reads credentials from the environment. If envFile exists it
// is loaded first; variables already set in the environment win.
func LoadSecrets(envFile string) (*Secrets, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
			}
		}
	}

	s := &Secrets{
		TelegramToken: os.Getenv(EnvTelegramToken),
		RedisPassword: os.Getenv(EnvRedisPassword),
		S3AccessKey:   os.Getenv(EnvS3AccessKey),
		S3SecretKey:   os.Getenv(EnvS3SecretKey),
	}
	if raw := os.Getenv(EnvTelegramChatID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", EnvTelegramChatID, err)
		}
		s.TelegramChatID = id
	}
	return s, nil
}
