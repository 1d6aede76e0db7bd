package archive

import (
	"context"
	"fmt"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

// NewArchiveFromConfig creates the archive selected by cfg.Type. An empty
// type disables archiving and returns nil.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig, secrets *config.Secrets) (sabot.Archive, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryArchive(), nil
	case "s3":
		if secrets == nil {
			secrets = &config.Secrets{}
		}
		a, err := NewS3Archive(ctx, cfg, secrets.S3AccessKey, secrets.S3SecretKey)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		a, err := NewFileSystemArchive(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
