package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ytdlp-telegram-bot/internal/domain"
)

const (
	// VideoExt is the container the downloader merges into.
	VideoExt = ".mkv"
	// InfoExt is the metadata sidecar written next to each video.
	InfoExt = ".info.json"
)

// ErrNotFound is returned when no artifact matches an id.
var ErrNotFound = errors.New("video not found")

// Library reads downloaded artifacts from the data directory.
type Library struct {
	dir      string
	glob     func(pattern string) ([]string, error)
	stat     func(name string) (os.FileInfo, error)
	readFile func(name string) ([]byte, error)
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:      dir,
		glob:     filepath.Glob,
		stat:     os.Stat,
		readFile: os.ReadFile,
	}
}

// Dir returns the library root.
func (l *Library) Dir() string {
	return l.dir
}

// Newest lists up to count videos ordered by modification time, newest first.
func (l *Library) Newest(count int) ([]domain.VideoFile, error) {
	paths, err := l.glob(filepath.Join(l.dir, "*"+VideoExt))
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}

	files := make([]domain.VideoFile, 0, len(paths))
	for _, path := range paths {
		info, err := l.stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		name, id, ok := ParseFileName(filepath.Base(path))
		if !ok {
			continue
		}
		files = append(files, domain.VideoFile{
			Name:    name,
			ID:      id,
			Path:    path,
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	if count > 0 && len(files) > count {
		files = files[:count]
	}
	return files, nil
}

// Find locates the video with the given id and loads its metadata sidecar.
func (l *Library) Find(id string) (domain.VideoFile, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\*?[]`) {
		return domain.VideoFile{}, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}

	paths, err := l.glob(filepath.Join(l.dir, "*"+VideoExt))
	if err != nil {
		return domain.VideoFile{}, fmt.Errorf("list videos: %w", err)
	}

	var match string
	for _, path := range paths {
		if _, fileID, ok := ParseFileName(filepath.Base(path)); ok && fileID == id {
			match = path
		}
	}
	if match == "" {
		return domain.VideoFile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	name, _, _ := ParseFileName(filepath.Base(match))
	video := domain.VideoFile{Name: name, ID: id, Path: match}
	if info, err := l.stat(match); err == nil {
		video.ModTime = info.ModTime()
	}

	infoPath := strings.TrimSuffix(match, VideoExt) + InfoExt
	data, err := l.readFile(infoPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return video, nil
		}
		return domain.VideoFile{}, fmt.Errorf("read metadata %s: %w", infoPath, err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.VideoFile{}, fmt.Errorf("parse metadata %s: %w", infoPath, err)
	}
	video.InfoPath = infoPath
	video.Info = meta
	return video, nil
}

// ParseFileName splits "<title> [<id>].<ext>" into title and id.
func ParseFileName(base string) (name, id string, ok bool) {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if !strings.HasSuffix(stem, "]") {
		return "", "", false
	}
	open := strings.LastIndex(stem, " [")
	if open < 0 {
		return "", "", false
	}
	id = stem[open+2 : len(stem)-1]
	if id == "" {
		return "", "", false
	}
	return stem[:open], id, true
}
