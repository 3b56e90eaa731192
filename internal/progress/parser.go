// Package progress turns raw output of supervised processes into percentages.
package progress

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"ytdlp-telegram-bot/internal/domain"
)

// DownloadLinePrefix marks progress lines produced by the downloader's
// progress template (see DownloadTemplate).
const DownloadLinePrefix = "progress:"

// DownloadTemplate is passed to yt-dlp as --progress-template.
const DownloadTemplate = "download:" + DownloadLinePrefix + "%(progress._percent_str)s"

// FrameKey is the ffmpeg -progress key carrying the current frame number.
const FrameKey = "frame"

// ErrInvalidFrameCount is returned when probe output is not a frame count.
var ErrInvalidFrameCount = errors.New("invalid frame count")

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// ParseDownload extracts a sample from one downloader output line.
func ParseDownload(chunk string) (domain.ProgressSample, bool) {
	line := strings.TrimSpace(ansiEscape.ReplaceAllString(chunk, ""))
	if !strings.HasPrefix(line, DownloadLinePrefix) {
		return domain.ProgressSample{}, false
	}

	raw := strings.TrimSpace(strings.TrimPrefix(line, DownloadLinePrefix))
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.ProgressSample{}, false
	}

	return domain.ProgressSample{Percent: clamp(value)}, true
}

// FrameParser computes transcode progress against a probed frame total.
type FrameParser struct {
	TotalFrames int
}

// Parse reads a key=value chunk and returns a sample for its last frame entry.
func (p FrameParser) Parse(chunk string) (domain.ProgressSample, bool) {
	if p.TotalFrames <= 0 {
		return domain.ProgressSample{}, false
	}

	frame := -1
	for _, line := range strings.Split(chunk, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || strings.TrimSpace(key) != FrameKey {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			frame = -1
			continue
		}
		frame = n
	}
	if frame < 0 {
		return domain.ProgressSample{}, false
	}

	return domain.ProgressSample{Percent: Percent(frame, p.TotalFrames)}, true
}

// Percent returns round(current/total*100) clamped to [0,100].
func Percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return clamp(float64(current) / float64(total) * 100)
}

// ParseFrameCount reads the single integer printed by the frame probe.
func ParseFrameCount(output string) (int, error) {
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty output", ErrInvalidFrameCount)
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrameCount, fields[0])
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFrameCount, n)
	}
	return n, nil
}

// clamp bounds percent to [0,100], then rounds.
func clamp(percent float64) int {
	return int(math.Round(math.Max(0, math.Min(100, percent))))
}
