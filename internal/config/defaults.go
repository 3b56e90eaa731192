package config

import (
	"os"
	"path/filepath"
	"time"

	"ytdlp-telegram-bot/internal/domain"
)

// DefaultSettings returns baseline configuration; secrets and the data
// directory have no default.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		TempDir:          filepath.Join(os.TempDir(), "ytdlp-telegram-bot"),
		UsersFile:        "users.json",
		CleanupDelay:     5 * time.Second,
		ProgressInterval: 300 * time.Millisecond,
		ListLimit:        10,
		LogLevel:         "info",
		LogFormat:        "text",
		Tools: domain.Tools{
			YtDlp:   "yt-dlp",
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			Convert: "convert",
		},
	}
}
