// Package editor owns the translation set being edited: the master key
// list, the translations, the selection cursor and the UI language.
//
// A Manager is the only mutator of that state. Every operation updates
// memory, writes the changed values through to the store and then notifies
// subscribers.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/lokedit/export"
	"github.com/minios-linux/lokedit/ingest"
	"github.com/minios-linux/lokedit/keylist"
	"github.com/minios-linux/lokedit/logging"
	"github.com/minios-linux/lokedit/store"
	"github.com/minios-linux/lokedit/translation"
)

var (
	ErrEmptyKey            = errors.New("key must not be empty")
	ErrTranslationNotFound = errors.New("translation not found")
)

// DefaultImportConcurrency bounds the number of files read at once by
// ImportFiles.
const DefaultImportConcurrency = 4

// Change is a bit set naming the collections an operation modified.
type Change uint8

const (
	ChangeKeys Change = 1 << iota
	ChangeTranslations
	ChangeSelection
	ChangeLanguage
)

// Has reports whether c includes all of o.
func (c Change) Has(o Change) bool { return c&o == o }

func (c Change) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		bit  Change
		name string
	}{
		{ChangeKeys, "keys"},
		{ChangeTranslations, "translations"},
		{ChangeSelection, "selection"},
		{ChangeLanguage, "language"},
	}
	s := ""
	for _, n := range names {
		if c.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}

// ImportResult is the outcome of importing one file.
type ImportResult struct {
	Name        string
	Translation *translation.Translation
	// NewKeys lists the keys this import appended to the key list.
	NewKeys []string
	Err     error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithImportConcurrency bounds concurrent file reads in ImportFiles.
// Values below 1 select DefaultImportConcurrency.
func WithImportConcurrency(n int) Option {
	return func(m *Manager) {
		if n < 1 {
			n = DefaultImportConcurrency
		}
		m.concurrency = n
	}
}

// Manager holds the editing state. It is safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	store        store.Store
	keys         *keylist.List
	translations []*translation.Translation
	selected     string
	language     string

	log         *slog.Logger
	concurrency int

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

// New loads the state held in st. Absent values start empty.
func New(ctx context.Context, st store.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:       st,
		log:         logging.Discard(),
		concurrency: DefaultImportConcurrency,
		observers:   make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(m)
	}

	lang, err := st.Language(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading language: %w", err)
	}
	keys, err := st.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading keys: %w", err)
	}
	ts, err := st.Translations(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading translations: %w", err)
	}

	m.language = lang
	m.keys = keylist.New(keys...)
	m.translations = ts
	m.log.Debug("state loaded", "keys", m.keys.Len(), "translations", len(ts), "language", lang)
	return m, nil
}

// ---------------------------------------------------------------------------
// Mutation plumbing
// ---------------------------------------------------------------------------

// update runs fn under the lock, writes the collections it reports as
// changed and then notifies subscribers. A write failure is returned but
// the in-memory change stays.
func (m *Manager) update(ctx context.Context, fn func() Change) error {
	m.mu.Lock()
	changed := fn()
	var err error
	if changed != 0 {
		err = m.persist(ctx, changed)
	}
	m.mu.Unlock()

	if changed != 0 {
		m.notify(changed)
	}
	return err
}

// persist must be called with m.mu held.
func (m *Manager) persist(ctx context.Context, c Change) error {
	var errs []error
	if c.Has(ChangeKeys) {
		if err := m.store.SetKeys(ctx, m.keys.Keys()); err != nil {
			errs = append(errs, fmt.Errorf("saving keys: %w", err))
		}
	}
	if c.Has(ChangeTranslations) {
		if err := m.store.SetTranslations(ctx, m.translations); err != nil {
			errs = append(errs, fmt.Errorf("saving translations: %w", err))
		}
	}
	if c.Has(ChangeLanguage) {
		if err := m.store.SetLanguage(ctx, m.language); err != nil {
			errs = append(errs, fmt.Errorf("saving language: %w", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn("state not saved", "change", c, "err", err)
	}
	return err
}

// Subscribe registers fn to be called after every change. Calls happen on
// the mutating goroutine, outside the state lock.
func (m *Manager) Subscribe(fn func(Change)) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Manager) notify(c Change) {
	m.obsMu.Lock()
	fns := make([]func(Change), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// AddKey appends key to the key list. Empty and already present keys are
// ignored and reported as false. Translations are not touched.
func (m *Manager) AddKey(ctx context.Context, key string) (bool, error) {
	added := false
	err := m.update(ctx, func() Change {
		if !m.keys.Add(key) {
			return 0
		}
		added = true
		return ChangeKeys
	})
	return added, err
}

// DeleteKey removes key from the key list and from every translation.
func (m *Manager) DeleteKey(ctx context.Context, key string) error {
	return m.update(ctx, func() Change {
		var c Change
		if m.keys.Remove(key) {
			c |= ChangeKeys
		}
		for _, t := range m.translations {
			if t.Data.Delete(key) {
				c |= ChangeTranslations
			}
		}
		return c
	})
}

// Keys returns a copy of the key list.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys.Keys()
}

// ---------------------------------------------------------------------------
// Translations
// ---------------------------------------------------------------------------

// AddLanguage appends an empty translation called name. An empty name is
// ignored. Names are not trimmed or deduplicated.
func (m *Manager) AddLanguage(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	err := m.update(ctx, func() Change {
		m.translations = append(m.translations, translation.New(name))
		return ChangeTranslations
	})
	return true, err
}

// DeleteTranslation removes the first translation called name.
func (m *Manager) DeleteTranslation(ctx context.Context, name string) (bool, error) {
	removed := false
	err := m.update(ctx, func() Change {
		for i, t := range m.translations {
			if t.Name == name {
				m.removeAt(i)
				removed = true
				return ChangeTranslations
			}
		}
		return 0
	})
	return removed, err
}

// SetSelectedTranslation moves the selection cursor. The name is not
// checked against the collection.
func (m *Manager) SetSelectedTranslation(name string) {
	m.mu.Lock()
	changed := m.selected != name
	m.selected = name
	m.mu.Unlock()
	if changed {
		m.notify(ChangeSelection)
	}
}

// SelectedTranslation returns the selection cursor.
func (m *Manager) SelectedTranslation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// DeleteSelectedTranslation removes the last translation whose name matches
// the selection cursor.
func (m *Manager) DeleteSelectedTranslation(ctx context.Context) (bool, error) {
	removed := false
	err := m.update(ctx, func() Change {
		for i := len(m.translations) - 1; i >= 0; i-- {
			if m.translations[i].Name == m.selected {
				m.removeAt(i)
				removed = true
				return ChangeTranslations
			}
		}
		return 0
	})
	return removed, err
}

func (m *Manager) removeAt(i int) {
	m.translations = append(m.translations[:i:i], m.translations[i+1:]...)
}

// SetValue sets key to value in the translation called name. A key missing
// from the key list is appended to it.
func (m *Manager) SetValue(ctx context.Context, name, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	var missing bool
	err := m.update(ctx, func() Change {
		t := m.find(name)
		if t == nil {
			missing = true
			return 0
		}
		t.Data.Set(key, value)
		c := ChangeTranslations
		if m.keys.Add(key) {
			c |= ChangeKeys
		}
		return c
	})
	if missing {
		return fmt.Errorf("%w: %s", ErrTranslationNotFound, name)
	}
	return err
}

func (m *Manager) find(name string) *translation.Translation {
	for _, t := range m.translations {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Translation returns a copy of the first translation called name.
func (m *Manager) Translation(name string) (*translation.Translation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(name)
	if t == nil {
		return nil, false
	}
	return t.Clone(), true
}

// Translations returns deep copies of all translations in order.
func (m *Manager) Translations() []*translation.Translation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Manager) snapshot() []*translation.Translation {
	out := make([]*translation.Translation, len(m.translations))
	for i, t := range m.translations {
		out[i] = t.Clone()
	}
	return out
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// ImportFile parses content as a translation named after fileName, appends
// it and merges its keys into the key list. On a parse failure nothing is
// added and a *translation.ParseError is returned.
func (m *Manager) ImportFile(ctx context.Context, fileName string, content []byte) (*translation.Translation, error) {
	res := m.importParsed(ctx, fileName, content)
	return res.Translation, res.Err
}

func (m *Manager) importParsed(ctx context.Context, fileName string, content []byte) ImportResult {
	res := ImportResult{Name: fileName}
	t, err := translation.Parse(fileName, content)
	if err != nil {
		res.Err = err
		return res
	}

	res.Err = m.update(ctx, func() Change {
		m.translations = append(m.translations, t)
		res.NewKeys = keylist.Merge(m.keys, t.Data.Clone())
		res.Translation = t.Clone()
		c := ChangeTranslations
		if len(res.NewKeys) > 0 {
			c |= ChangeKeys
		}
		return c
	})
	m.log.Debug("imported", "file", fileName, "entries", res.Translation.Data.Len(), "new_keys", len(res.NewKeys))
	return res
}

// ProgressFunc receives read progress for sources[i] of an import batch.
// Calls for one source are sequential; different sources report
// concurrently.
type ProgressFunc func(i int, name string, p ingest.Progress)

// ImportFiles reads sources concurrently and imports each one as it
// completes. A failing file does not affect the others. Results are
// returned in input order; translations are appended in completion order.
func (m *Manager) ImportFiles(ctx context.Context, sources []ingest.Source) []ImportResult {
	return m.ImportFilesWithProgress(ctx, sources, nil)
}

// ImportFilesWithProgress is ImportFiles with read progress delivered to
// progress. A nil progress discards it.
func (m *Manager) ImportFilesWithProgress(ctx context.Context, sources []ingest.Source, progress ProgressFunc) []ImportResult {
	results := make([]ImportResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			read := ingest.ReadAsText(gctx, src)
			for p := range read.Progress() {
				if progress != nil {
					progress(i, src.Name(), p)
				}
			}
			text, err := read.Wait()
			if err != nil {
				results[i] = ImportResult{Name: src.Name(), Err: fmt.Errorf("reading %s: %w", src.Name(), err)}
				return nil
			}
			results[i] = m.importParsed(ctx, src.Name(), []byte(text))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ---------------------------------------------------------------------------
// Language and export
// ---------------------------------------------------------------------------

// Language returns the UI language code.
func (m *Manager) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

// SetLanguage stores the UI language code.
func (m *Manager) SetLanguage(ctx context.Context, code string) error {
	return m.update(ctx, func() Change {
		if m.language == code {
			return 0
		}
		m.language = code
		return ChangeLanguage
	})
}

// Export writes the zip archive of the current translations to w.
func (m *Manager) Export(ctx context.Context, w io.Writer) error {
	return export.Write(ctx, w, m.Translations())
}
