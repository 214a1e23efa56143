// Package store persists lokedit's state: the UI language, the key list,
// the translation collection and the cached locale catalogue.
//
// Every backend stores the same four values under the same names:
//
//	language      string
//	keys          ordered list of keys
//	translations  list of {name, data}
//	locales       opaque JSON catalogue
//
// Reading a value that was never written returns its zero value.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/minios-linux/lokedit/config"
	"github.com/minios-linux/lokedit/translation"
)

// Value names shared by all backends.
const (
	KeyLanguage     = "language"
	KeyKeys         = "keys"
	KeyTranslations = "translations"
	KeyLocales      = "locales"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the persistence adapter.
type Store interface {
	Language(ctx context.Context) (string, error)
	SetLanguage(ctx context.Context, language string) error

	Keys(ctx context.Context) ([]string, error)
	SetKeys(ctx context.Context, keys []string) error

	Translations(ctx context.Context) ([]*translation.Translation, error)
	SetTranslations(ctx context.Context, translations []*translation.Translation) error

	Locales(ctx context.Context) (json.RawMessage, error)
	SetLocales(ctx context.Context, locales json.RawMessage) error

	Close() error
}

// Open returns the backend selected by cfg.
func Open(cfg config.Store) (Store, error) {
	switch cfg.Backend {
	case config.BackendPebble, "":
		return OpenPebble(cfg.Path)
	case config.BackendFile:
		return OpenFile(afero.NewOsFs(), cfg.Path)
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Backend)
	}
}

// normalize replaces nil data maps so callers never see a nil *Data.
func normalize(ts []*translation.Translation) []*translation.Translation {
	out := ts[:0]
	for _, t := range ts {
		if t == nil {
			continue
		}
		if t.Data == nil {
			t.Data = translation.NewData()
		}
		out = append(out, t)
	}
	return out
}

func cloneTranslations(ts []*translation.Translation) []*translation.Translation {
	out := make([]*translation.Translation, 0, len(ts))
	for _, t := range ts {
		if t == nil {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(json.RawMessage, len(in))
	copy(out, in)
	return out
}
