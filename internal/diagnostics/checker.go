package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ytdlp-telegram-bot/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("yt-dlp", settings.Tools.YtDlp, domain.DiagnosticStatusFail,
			"Install yt-dlp (https://github.com/yt-dlp/yt-dlp) or set YTBOT_TOOLS_YTDLP."),
		c.checkTool("ffmpeg", settings.Tools.FFmpeg, domain.DiagnosticStatusFail,
			"Install ffmpeg; yt-dlp also needs it to merge formats."),
		c.checkTool("ffprobe", settings.Tools.FFprobe, domain.DiagnosticStatusFail,
			"ffprobe ships with ffmpeg; transcode progress needs it."),
		c.checkTool("convert", settings.Tools.Convert, domain.DiagnosticStatusWarn,
			"Install ImageMagick to convert webp posters to jpg."),
		c.checkDataDir(settings.DataDir),
		c.checkWritableDir("temp_dir", "Temp directory", settings.TempDir,
			"Set YTBOT_TEMP_DIR to a writable location for transcoded files."),
	}
	if settings.UsersFile != "" {
		dir := filepath.Dir(settings.UsersFile)
		items = append(items, c.checkWritableDir("users_file", "Users file directory", dir,
			"The users file is rewritten on every registration; its directory must be writable."))
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies an executable resolves on PATH or as a path.
func (c *Checker) checkTool(label, name string, missing domain.DiagnosticStatus, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "tool_" + label,
		Name: label,
	}
	if strings.TrimSpace(name) == "" {
		name = label
	}

	path, err := c.lookPath(name)
	if err != nil {
		item.Status = missing
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", name)
		item.Hint = hint
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkDataDir validates the download directory exists and is writable.
// It is not created: a missing mount should fail loudly.
func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Data directory",
	}

	if strings.TrimSpace(dataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is empty."
		item.Hint = "Set DATA_DIRECTORY to the directory downloads are stored in."
		return item
	}

	info, err := c.stat(dataDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Data directory does not exist: %s", dataDir)
		} else {
			item.Message = fmt.Sprintf("Cannot access data directory: %s", dataDir)
		}
		item.Hint = "Create the directory or fix DATA_DIRECTORY."
		return item
	}
	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not a directory: %s", dataDir)
		item.Hint = "Point DATA_DIRECTORY at a directory."
		return item
	}

	return c.probeWrite(item, dataDir, "Check permissions of the data directory.")
}

// checkWritableDir creates dir when needed and validates write access.
func (c *Checker) checkWritableDir(id, name, dir, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = hint
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = hint
		return item
	}

	return c.probeWrite(item, dir, hint)
}

func (c *Checker) probeWrite(item domain.DiagnosticItem, dir, hint string) domain.DiagnosticItem {
	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = hint
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}
