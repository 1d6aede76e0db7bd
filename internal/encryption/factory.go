package encryption

import (
	"fmt"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

// NewEncryptorFromConfig builds the archive encryptor. An empty type means
// age, which needs both key paths.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (sabot.Encryptor, error) {
	switch cfg.Type {
	case "", "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption needs public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return FramedEncryptor{}, nil
	}
	return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
}
