package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"sabot-go/internal/sabot"
)

// ImportLegacyVideos folds a standalone {"videos": [...]} seen list into
// the video_host namespace. A missing file imports nothing. The legacy
// file is left in place.
func (l *Ledger) ImportLegacyVideos(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading legacy video ledger: %w", err)
	}

	var legacy struct {
		Videos []string `json:"videos"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		l.logger.Warn("legacy video ledger malformed, skipped", "path", path, "error", err)
		return 0, nil
	}

	added, err := l.ImportSeen(sabot.VideoHost, legacy.Videos)
	if err != nil {
		return 0, fmt.Errorf("importing legacy video ids: %w", err)
	}
	if added > 0 {
		l.logger.Info("imported legacy video ids", "path", path, "count", added)
	}
	return added, nil
}
