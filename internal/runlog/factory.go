package runlog

import (
	"fmt"
	"os"
	"path/filepath"

	"sabot-go/internal/config"
)

// NewRunLogFromConfig creates the run history store selected by cfg.Type.
func NewRunLogFromConfig(cfg config.RunLogConfig, instanceID string) (*SQLiteRunLog, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite run log")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating run log directory: %w", err)
		}
		return NewSQLiteRunLog(filepath.Join(cfg.DataDir, instanceID+".db"))
	case "memory":
		return NewSQLiteRunLog(":memory:")
	default:
		return nil, fmt.Errorf("unknown run log type: %s", cfg.Type)
	}
}
