package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/minios-linux/lokedit/translation"
)

// Memory keeps state in process memory. Values are copied on the way in and
// out, so callers cannot alias stored state.
type Memory struct {
	mu           sync.Mutex
	language     string
	keys         []string
	translations []*translation.Translation
	locales      json.RawMessage

	// Writes counts successful Set* calls per value name.
	Writes map[string]int
	// FailWrites makes every Set* call return this error when non-nil.
	FailWrites error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{Writes: make(map[string]int)}
}

func (m *Memory) write(name string) error {
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.Writes[name]++
	return nil
}

func (m *Memory) Language(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language, nil
}

func (m *Memory) SetLanguage(ctx context.Context, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(KeyLanguage); err != nil {
		return err
	}
	m.language = language
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneStrings(m.keys), nil
}

func (m *Memory) SetKeys(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(KeyKeys); err != nil {
		return err
	}
	m.keys = cloneStrings(keys)
	return nil
}

func (m *Memory) Translations(ctx context.Context) ([]*translation.Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTranslations(m.translations), nil
}

func (m *Memory) SetTranslations(ctx context.Context, translations []*translation.Translation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(KeyTranslations); err != nil {
		return err
	}
	m.translations = cloneTranslations(translations)
	return nil
}

func (m *Memory) Locales(ctx context.Context) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRaw(m.locales), nil
}

func (m *Memory) SetLocales(ctx context.Context, locales json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(KeyLocales); err != nil {
		return err
	}
	m.locales = cloneRaw(locales)
	return nil
}

func (m *Memory) Close() error { return nil }
