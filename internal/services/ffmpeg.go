package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FFmpegService measures audio with the local ffprobe binary.
type FFmpegService struct {
	tempDir string
	ffprobe string // resolved binary; empty when not installed
}

func NewFFmpegService(tempDir string) *FFmpegService {
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		log.Infof("[FFmpeg] ffprobe not found, sample durations come from other probes")
		path = ""
	}
	return &FFmpegService{tempDir: tempDir, ffprobe: path}
}

func (s *FFmpegService) Configured() bool { return s.ffprobe != "" }

// Duration writes the sample to a temp file and asks ffprobe for its length in seconds.
func (s *FFmpegService) Duration(ctx context.Context, fileName string, data []byte) (float64, error) {
	if !s.Configured() {
		return 0, fmt.Errorf("ffprobe is not installed")
	}
	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create temp dir: %w", err)
	}

	f, err := os.CreateTemp(s.tempDir, "sample-*"+filepath.Ext(fileName))
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write temp file: %w", err)
	}

	ms, err := s.AudioDuration(ctx, f.Name())
	if err != nil {
		return 0, err
	}
	return float64(ms) / 1000, nil
}

// AudioDuration returns the duration of an audio file in milliseconds
func (s *FFmpegService) AudioDuration(ctx context.Context, audioPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	cmd := exec.CommandContext(ctx, s.ffprobe, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbeDuration(string(output))
}

func parseProbeDuration(output string) (int, error) {
	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(output), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return int(durationSec * 1000), nil
}

// ProbeChain tries each configured probe in order until one measures the sample.
type ProbeChain []DurationProbe

func (c ProbeChain) Configured() bool {
	for _, p := range c {
		if p != nil && p.Configured() {
			return true
		}
	}
	return false
}

func (c ProbeChain) Duration(ctx context.Context, fileName string, data []byte) (float64, error) {
	err := fmt.Errorf("no duration probe configured")
	for _, p := range c {
		if p == nil || !p.Configured() {
			continue
		}
		var d float64
		d, err = p.Duration(ctx, fileName, data)
		if err == nil {
			return d, nil
		}
		log.Debugf("[Probe] %s: %v", fileName, err)
	}
	return 0, err
}
