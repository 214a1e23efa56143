package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/minios-linux/lokedit/translation"
)

// Pebble keeps state in an embedded pebble database, one JSON value per
// name. Writes are synced before returning.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (creating if needed) the database in dir.
func OpenPebble(dir string) (*Pebble, error) {
	return openPebble(dir, &pebble.Options{})
}

func openPebble(dir string, opts *pebble.Options) (*Pebble, error) {
	if dir == "" {
		return nil, errors.New("pebble store path not set")
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("opening pebble store %s: %w", dir, err)
	}
	return &Pebble{db: db}, nil
}

// get decodes the value stored under name into out.
// A missing value leaves out untouched.
func (p *Pebble) get(name string, out any) error {
	value, closer, err := p.db.Get([]byte(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

func (p *Pebble) set(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := p.db.Set([]byte(name), data, pebble.Sync); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (p *Pebble) Language(ctx context.Context) (string, error) {
	var language string
	err := p.get(KeyLanguage, &language)
	return language, err
}

func (p *Pebble) SetLanguage(ctx context.Context, language string) error {
	return p.set(KeyLanguage, language)
}

func (p *Pebble) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := p.get(KeyKeys, &keys)
	return keys, err
}

func (p *Pebble) SetKeys(ctx context.Context, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return p.set(KeyKeys, keys)
}

func (p *Pebble) Translations(ctx context.Context) ([]*translation.Translation, error) {
	var ts []*translation.Translation
	if err := p.get(KeyTranslations, &ts); err != nil {
		return nil, err
	}
	return normalize(ts), nil
}

func (p *Pebble) SetTranslations(ctx context.Context, translations []*translation.Translation) error {
	return p.set(KeyTranslations, cloneTranslations(translations))
}

func (p *Pebble) Locales(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := p.get(KeyLocales, &raw); err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func (p *Pebble) SetLocales(ctx context.Context, locales json.RawMessage) error {
	if len(locales) == 0 {
		if err := p.db.Delete([]byte(KeyLocales), pebble.Sync); err != nil {
			return fmt.Errorf("deleting %s: %w", KeyLocales, err)
		}
		return nil
	}
	return p.set(KeyLocales, locales)
}

// Close flushes and closes the database.
func (p *Pebble) Close() error {
	return p.db.Close()
}
