package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"sabot-go/internal/sabot"
)

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// FFmpeg merges separate streams by shelling out to ffmpeg. The video
// stream is copied; audio is re-encoded to AAC.
type FFmpeg struct {
	binary string
	run    runFunc
}

var _ sabot.Transcoder = (*FFmpeg)(nil)

// NewFFmpeg returns an FFmpeg using binary, or "ffmpeg" from PATH when
// binary is empty.
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, run: execRun}
}

func (f *FFmpeg) Merge(ctx context.Context, videoPath, audioPath, outPath string) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		outPath,
		"-y",
	}
	out, err := f.run(ctx, f.binary, args...)
	if err != nil {
		return fmt.Errorf("running %s: %w: %s", f.binary, err, lastLine(out))
	}
	return nil
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.binary)
	return err == nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
