package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

const (
	defaultAttempts  = 3
	defaultBackoff   = 2 * time.Second
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Store keeps downloaded media under a root directory:
//
//	<root>/
//	  <platform>/
//	    <account>/
//	      <content_id>/
//	        <prefix>_<content_id>_<suffix><ext>
//
// Files appear under their final name only once fully written, so an
// existing file is always a complete download.
type Store struct {
	root       string
	client     *http.Client
	attempts   int
	backoff    time.Duration
	userAgent  string
	transcoder sabot.Transcoder
	logger     sabot.Logger
}

var _ sabot.MediaStore = (*Store)(nil)

// NewStore creates the media root if needed. transcoder may be nil, in
// which case merged downloads keep the video-only stream.
func NewStore(cfg config.MediaConfig, transcoder sabot.Transcoder, logger sabot.Logger) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("media store requires root to be set")
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating media root: %w", err)
	}

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	backoff := defaultBackoff
	if cfg.BackoffSeconds > 0 {
		backoff = time.Duration(cfg.BackoffSeconds) * time.Second
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Store{
		root:       cfg.Root,
		client:     &http.Client{Timeout: timeout},
		attempts:   attempts,
		backoff:    backoff,
		userAgent:  ua,
		transcoder: transcoder,
		logger:     logger,
	}, nil
}

// SetBackoff overrides the delay between download attempts.
func (s *Store) SetBackoff(d time.Duration) { s.backoff = d }

// Root returns the media root directory.
func (s *Store) Root() string { return s.root }

// PathFor returns <root>/<platform>/<account>/<content_id>/<filename> and
// creates the content directory.
func (s *Store) PathFor(platform sabot.Platform, account, contentID, filename string) (string, error) {
	dir := s.contentDir(platform, account, contentID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating media directory: %w", err)
	}
	return filepath.Join(dir, sabot.SanitizeComponent(filename)), nil
}

func (s *Store) contentDir(platform sabot.Platform, account, contentID string) string {
	return filepath.Join(s.root,
		sabot.SanitizeComponent(string(platform)),
		sabot.SanitizeComponent(account),
		sabot.SanitizeComponent(contentID))
}

// Exists reports whether path is an existing regular file.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Download fetches url into dest, retrying any failure with a fixed
// backoff. Only a 200 response counts as success.
func (s *Store) Download(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.fetch(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("download attempt failed", "url", url, "attempt", attempt, "error", lastErr)

		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("downloading %s: %w", url, ctx.Err())
		case <-time.After(s.backoff):
		}
	}
	return fmt.Errorf("downloading %s after %d attempts: %w", url, s.attempts, lastErr)
}

// fetch performs a single attempt, writing to a temp file next to dest
// and renaming it into place on success.
func (s *Store) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing body: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// DownloadMerged fetches separate video and audio streams and merges them
// into a hidden file next to dest, renamed into place once complete. If the
// audio stream or the merge fails, the video-only stream is kept as dest.
func (s *Store) DownloadMerged(ctx context.Context, videoURL, audioURL, dest string) error {
	dir := filepath.Dir(dest)
	base := strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
	videoTmp := filepath.Join(dir, "temp_video_"+base+".m4s")
	audioTmp := filepath.Join(dir, "temp_audio_"+base+".m4s")
	// Keeps dest's extension so the transcoder picks the same container.
	mergeTmp := filepath.Join(dir, ".merge-"+filepath.Base(dest))
	defer os.Remove(videoTmp)
	defer os.Remove(audioTmp)
	defer os.Remove(mergeTmp)

	if err := s.Download(ctx, videoURL, videoTmp); err != nil {
		return fmt.Errorf("video stream: %w", err)
	}

	if err := s.Download(ctx, audioURL, audioTmp); err != nil {
		s.logger.Warn("audio stream unavailable, keeping video only", "dest", dest, "error", err)
		return s.keepVideoOnly(videoTmp, dest)
	}

	if s.transcoder == nil {
		s.logger.Warn("no transcoder configured, keeping video only", "dest", dest)
		return s.keepVideoOnly(videoTmp, dest)
	}

	if err := s.transcoder.Merge(ctx, videoTmp, audioTmp, mergeTmp); err != nil || !s.Exists(mergeTmp) {
		s.logger.Warn("merging streams failed, keeping video only", "dest", dest, "error", err)
		return s.keepVideoOnly(videoTmp, dest)
	}
	if err := os.Rename(mergeTmp, dest); err != nil {
		return fmt.Errorf("placing merged file: %w", err)
	}
	return nil
}

func (s *Store) keepVideoOnly(videoTmp, dest string) error {
	if err := os.Rename(videoTmp, dest); err != nil {
		return fmt.Errorf("keeping video-only stream: %w", err)
	}
	return nil
}

// Cleanup removes the given files, then their content directory and the
// account directory above it if those are left empty. Missing files are
// not an error.
func (s *Store) Cleanup(paths []string) error {
	var errs []error
	dirs := make(map[string]bool)
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", p, err))
			continue
		}
		dirs[filepath.Dir(p)] = true
	}

	for dir := range dirs {
		for range 2 {
			if !s.within(dir) || !removeIfEmpty(dir) {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
	return errors.Join(errs...)
}

// within reports whether dir is strictly below the platform level of the
// media root, so cleanup never removes the root or a platform directory.
func (s *Store) within(dir string) bool {
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return len(strings.Split(rel, string(filepath.Separator))) >= 2
}

func removeIfEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}

// ScanAccounts lists the account directories stored for a platform.
func (s *Store) ScanAccounts(platform sabot.Platform) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, sabot.SanitizeComponent(string(platform))))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading platform directory: %w", err)
	}

	var accounts []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			accounts = append(accounts, e.Name())
		}
	}
	return accounts, nil
}

// ScanContent lists the complete media files stored for a content item,
// sorted by name.
func (s *Store) ScanContent(platform sabot.Platform, account, contentID string) ([]string, error) {
	dir := s.contentDir(platform, account, contentID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading content directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "temp_") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}
