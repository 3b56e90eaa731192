package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/domain"
)

// FileStore persists users in a single JSON object on disk. Every Set is
// written through and every Get re-reads the file, so edits made by an
// operator are picked up without a restart.
type FileStore struct {
	path string
	log  logrus.FieldLogger

	mu    sync.RWMutex
	users map[string]domain.UserRecord
}

// OpenFileStore loads path, creating it as an empty object when missing.
// A corrupt file is reset to an empty object.
func OpenFileStore(path string, log logrus.FieldLogger) (*FileStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &FileStore{
		path:  path,
		log:   log.WithField("users_file", path),
		users: make(map[string]domain.UserRecord),
	}
	if err := s.createIfNotExists(); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (domain.UserRecord, bool) {
	if err := s.load(); err != nil {
		s.log.WithError(err).Warn("reload users file failed")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.users[key]
	return record, ok
}

func (s *FileStore) Set(key string, record domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[key] = record
	return s.saveLocked()
}

func (s *FileStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[key]
	return ok
}

func (s *FileStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.users)
}

// Watch reloads the store whenever the file changes on disk, until ctx ends.
// The parent directory is watched so atomic replacements are seen.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create users file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				s.log.Debug("users file changed, reloading")
				if err := s.load(); err != nil {
					s.log.WithError(err).Warn("reload users file failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.WithError(err).Warn("users file watcher error")
			}
		}
	}()
	return nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.users = make(map[string]domain.UserRecord)
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("read users file: %w", err)
	}

	users := make(map[string]domain.UserRecord)
	if len(bytes.TrimSpace(data)) == 0 {
		// truncated mid-write; the following write event reloads it
		s.users = users
		return nil
	}
	if err := json.Unmarshal(data, &users); err != nil {
		s.log.WithError(err).Warn("users file is corrupt, resetting")
		s.users = make(map[string]domain.UserRecord)
		return s.saveLocked()
	}
	s.users = users
	return nil
}

func (s *FileStore) createIfNotExists() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat users file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create users directory: %w", err)
	}
	return os.WriteFile(s.path, []byte("{}"), 0o644)
}

func (s *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.users, "", "    ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return fmt.Errorf("create temp users file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}
