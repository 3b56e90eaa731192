package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ytdlp-telegram-bot/internal/domain"
)

func foundEverywhere(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func newOSChecker(lookPath func(string) (string, error)) *Checker {
	return NewCheckerForTests(lookPath, os.Stat, os.MkdirAll, os.CreateTemp, os.Remove)
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	settings := domain.Settings{
		DataDir:   root,
		TempDir:   filepath.Join(root, "tmp"),
		UsersFile: filepath.Join(root, "state", "users.json"),
		Tools:     domain.Tools{YtDlp: "yt-dlp", FFmpeg: "ffmpeg", FFprobe: "ffprobe", Convert: "convert"},
	}

	report := newOSChecker(foundEverywhere).Run(settings)
	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Failed())
	}
	assertStatusByID(t, report, "users_file", domain.DiagnosticStatusPass)
	if _, err := os.Stat(settings.TempDir); err != nil {
		t.Fatalf("temp dir not created: %v", err)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := newOSChecker(func(string) (string, error) { return "", errors.New("not found") })

	report := checker.Run(domain.Settings{
		DataDir: "/path/that/does/not/exist",
		TempDir: "",
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_yt-dlp", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_ffprobe", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_convert", domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "temp_dir", domain.DiagnosticStatusFail)
}

// TestCheckerMissingConvertOnlyWarns keeps the bot healthy without ImageMagick.
func TestCheckerMissingConvertOnlyWarns(t *testing.T) {
	root := t.TempDir()
	checker := newOSChecker(func(name string) (string, error) {
		if name == "convert" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	})

	report := checker.Run(domain.Settings{DataDir: root, TempDir: filepath.Join(root, "tmp")})
	if report.HasFailures {
		t.Fatalf("convert must not fail the report: %+v", report.Failed())
	}
	assertStatusByID(t, report, "tool_convert", domain.DiagnosticStatusWarn)
}

// TestCheckerDataDirMustBeDirectory validates the data dir check.
func TestCheckerDataDirMustBeDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	report := newOSChecker(foundEverywhere).Run(domain.Settings{DataDir: file, TempDir: root})
	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
