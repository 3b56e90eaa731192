// Package transcode prepares ffprobe/ffmpeg invocations that turn a library
// video into a chat-friendly mp4.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ytdlp-telegram-bot/internal/progress"
	"ytdlp-telegram-bot/internal/supervisor"
)

// ffmpeg output settings.
const (
	VideoCodec    = "libx264"
	VideoPreset   = "veryfast"
	VideoCRF      = "23"
	AudioCodec    = "aac"
	AudioBitrate  = "128k"
	FastStartFlag = "+faststart"
	OutputPrefix  = "video-"
	OutputExt     = ".mp4"
)

// ProbeError reports a failed frame-count probe.
type ProbeError struct {
	Input  string
	Result supervisor.Result
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s (exit=%d): %v", e.Input, e.Result.ExitCode, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Transcoder builds transcode commands and manages their output artifacts.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	runner      supervisor.Runner
	stat        func(name string) (os.FileInfo, error)
	mkdirAll    func(path string, perm os.FileMode) error
	remove      func(name string) error
}

// New constructs a transcoder writing into tempDir.
func New(ffmpegPath, ffprobePath, tempDir string, runner supervisor.Runner) *Transcoder {
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
		runner:      runner,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		remove:      os.Remove,
	}
}

// OutputPath returns the deterministic artifact path for a source id.
func (t *Transcoder) OutputPath(id string) string {
	return filepath.Join(t.tempDir, OutputPrefix+id+OutputExt)
}

// Existing reports a previously produced artifact for id.
func (t *Transcoder) Existing(id string) (Artifact, bool) {
	path := t.OutputPath(id)
	info, err := t.stat(path)
	if err != nil || info.IsDir() {
		return Artifact{}, false
	}
	return Artifact{Path: path, Reused: true}, true
}

// Probe counts video frames of input.
func (t *Transcoder) Probe(ctx context.Context, input string) (int, error) {
	args := BuildProbeArgs(input)
	result, err := t.runner.Run(ctx, t.ffprobePath, args...)
	if err != nil {
		return 0, &ProbeError{Input: input, Result: result, Err: err}
	}

	frames, err := progress.ParseFrameCount(result.Stdout)
	if err != nil {
		return 0, &ProbeError{Input: input, Result: result, Err: err}
	}
	return frames, nil
}

// Command prepares the temp directory and returns the ffmpeg invocation for id.
func (t *Transcoder) Command(input, id string) (supervisor.Command, Artifact, error) {
	if err := t.mkdirAll(t.tempDir, 0o755); err != nil {
		return supervisor.Command{}, Artifact{}, fmt.Errorf("create temp directory %s: %w", t.tempDir, err)
	}

	output := t.OutputPath(id)
	cmd := supervisor.Command{
		Name:           t.ffmpegPath,
		Args:           BuildFFmpegArgs(input, output),
		ProgressStream: supervisor.Stdout,
	}
	return cmd, Artifact{Path: output, remove: t.remove}, nil
}

// Discard removes a partial artifact after a failed run.
func (t *Transcoder) Discard(a Artifact) {
	if a.Reused || a.Path == "" {
		return
	}
	_ = t.remove(a.Path)
}

// Artifact is one transcoded output file.
type Artifact struct {
	Path   string
	Reused bool
	remove func(name string) error
}

// Cleanup deletes a freshly produced artifact once it has been delivered.
// Reused artifacts are kept.
func (a *Artifact) Cleanup() error {
	if a == nil || a.Reused || a.remove == nil || a.Path == "" {
		return nil
	}
	if err := a.remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	a.remove = nil
	return nil
}

// BuildProbeArgs counts decoded frames of the first video stream.
func BuildProbeArgs(input string) []string {
	return []string{
		"-v", "error",
		"-count_frames",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		"-of", "default=nokey=1:noprint_wrappers=1",
		input,
	}
}

// BuildFFmpegArgs builds an h264/aac mp4 transcode reporting progress on stdout.
func BuildFFmpegArgs(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", input,
		"-c:v", VideoCodec,
		"-preset", VideoPreset,
		"-crf", VideoCRF,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-movflags", FastStartFlag,
		"-progress", "-",
		"-nostats",
		"-y",
		output,
	}
}

// NewForTests constructs a transcoder with injectable filesystem functions.
func NewForTests(
	ffmpegPath, ffprobePath, tempDir string,
	runner supervisor.Runner,
	stat func(name string) (os.FileInfo, error),
	remove func(name string) error,
) *Transcoder {
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
		runner:      runner,
		stat:        stat,
		mkdirAll:    os.MkdirAll,
		remove:      remove,
	}
}
