package ledger

import (
	"fmt"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

// NewLedgerFromConfig creates a Ledger based on the ledger config type.
func NewLedgerFromConfig(cfg config.LedgerConfig, logger sabot.Logger) (*Ledger, error) {
	switch cfg.Type {
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file ledger requires path to be set")
		}
		l := NewFileLedger(cfg.Path, logger)
		if cfg.LegacyVideosPath != "" {
			if _, err := l.ImportLegacyVideos(cfg.LegacyVideosPath); err != nil {
				return nil, err
			}
		}
		return l, nil
	case "memory":
		return NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}
}
