package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/lokedit/translation"
)

// FileVersion is the state document format version.
const FileVersion = 1

// fileState is the YAML state document.
type fileState struct {
	Version      int                        `yaml:"version"`
	Language     string                     `yaml:"language,omitempty"`
	Keys         []string                   `yaml:"keys"`
	Translations []*translation.Translation `yaml:"translations"`
	// Locales holds the catalogue as JSON text.
	Locales string `yaml:"locales,omitempty"`
}

// File keeps state in a single YAML document. The whole document is
// rewritten atomically on every change.
type File struct {
	mu    sync.Mutex
	fs    afero.Fs
	path  string
	state fileState
}

// OpenFile loads the state document at path on fs.
// A missing document yields an empty store.
func OpenFile(fs afero.Fs, path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file store path not set")
	}
	f := &File{
		fs:    fs,
		path:  path,
		state: fileState{Version: FileVersion},
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &f.state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.state.Version > FileVersion {
		return nil, fmt.Errorf("%s: unsupported state version %d", path, f.state.Version)
	}
	f.state.Version = FileVersion
	f.state.Translations = normalize(f.state.Translations)

	return f, nil
}

// Path returns the state document path.
func (f *File) Path() string {
	return f.path
}

// update applies fn to a copy of the state, writes it, then commits it.
// A failed write leaves the previous state in place.
func (f *File) update(fn func(*fileState)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.state
	fn(&next)

	data, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := writeFileAtomic(f.fs, f.path, data); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}

	f.state = next
	return nil
}

func (f *File) Language(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Language, nil
}

func (f *File) SetLanguage(ctx context.Context, language string) error {
	return f.update(func(s *fileState) { s.Language = language })
}

func (f *File) Keys(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneStrings(f.state.Keys), nil
}

func (f *File) SetKeys(ctx context.Context, keys []string) error {
	keys = cloneStrings(keys)
	return f.update(func(s *fileState) { s.Keys = keys })
}

func (f *File) Translations(ctx context.Context) ([]*translation.Translation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneTranslations(f.state.Translations), nil
}

func (f *File) SetTranslations(ctx context.Context, translations []*translation.Translation) error {
	translations = cloneTranslations(translations)
	return f.update(func(s *fileState) { s.Translations = translations })
}

func (f *File) Locales(ctx context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Locales == "" {
		return nil, nil
	}
	return json.RawMessage(f.state.Locales), nil
}

func (f *File) SetLocales(ctx context.Context, locales json.RawMessage) error {
	if len(locales) > 0 && !json.Valid(locales) {
		return errors.New("locales: invalid JSON")
	}
	text := string(locales)
	return f.update(func(s *fileState) { s.Locales = text })
}

func (f *File) Close() error { return nil }

// ---------------------------------------------------------------------------
// Atomic write
// ---------------------------------------------------------------------------

// writeFileAtomic writes data to a sibling temp file and renames it over
// targetPath. When the filesystem refuses to rename over an existing file,
// the target is moved aside first and restored if the second rename fails.
func writeFileAtomic(fs afero.Fs, targetPath string, data []byte) error {
	tempPath := targetPath + ".tmp"
	backupPath := targetPath + ".bak"

	if err := removeIfExists(fs, tempPath); err != nil {
		return err
	}
	if err := afero.WriteFile(fs, tempPath, data, 0644); err != nil {
		return err
	}

	renameErr := fs.Rename(tempPath, targetPath)
	if renameErr == nil {
		return nil
	}

	exists, err := afero.Exists(fs, targetPath)
	if err != nil || !exists {
		return errors.Join(renameErr, removeIfExists(fs, tempPath))
	}

	if err := fs.Rename(targetPath, backupPath); err != nil {
		return errors.Join(err, removeIfExists(fs, tempPath))
	}
	if err := fs.Rename(tempPath, targetPath); err != nil {
		rollbackErr := fs.Rename(backupPath, targetPath)
		if rollbackErr != nil {
			rollbackErr = fmt.Errorf("failed to restore backup %s: %w", backupPath, rollbackErr)
		}
		return errors.Join(err, removeIfExists(fs, tempPath), rollbackErr)
	}
	return removeIfExists(fs, backupPath)
}

func removeIfExists(fs afero.Fs, path string) error {
	if err := fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
