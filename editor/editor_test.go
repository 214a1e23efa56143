package editor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/lokedit/ingest"
	"github.com/minios-linux/lokedit/logging"
	"github.com/minios-linux/lokedit/store"
	"github.com/minios-linux/lokedit/translation"
)

func newManager(t *testing.T, opts ...Option) (*Manager, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	m, err := New(context.Background(), st, opts...)
	require.NoError(t, err)
	return m, st
}

func TestNewLoadsStoredState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SetLanguage(ctx, "ru"))
	require.NoError(t, st.SetKeys(ctx, []string{"a", "b"}))
	require.NoError(t, st.SetTranslations(ctx, []*translation.Translation{
		{Name: "en", Data: translation.DataOf("a", "A")},
	}))

	m, err := New(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, "ru", m.Language())
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	require.Len(t, m.Translations(), 1)
	assert.Equal(t, "en", m.Translations()[0].Name)
}

func TestImportMergesKeys(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	for _, k := range []string{"a", "b"} {
		_, err := m.AddKey(ctx, k)
		require.NoError(t, err)
	}

	tr, err := m.ImportFile(ctx, "fr.json", []byte(`{"b":"x","c":"y"}`))
	require.NoError(t, err)
	assert.Equal(t, "fr", tr.Name)

	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
	got, ok := m.Translation("fr")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"b": "x", "c": "y"}, got.Data.Map())

	stored, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, stored)
}

func TestImportFileRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)

	_, err := m.ImportFile(ctx, "bad.json", []byte(`{"a":`))
	var perr *translation.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.json", perr.File)

	assert.Empty(t, m.Translations())
	assert.Empty(t, m.Keys())
	assert.Zero(t, st.Writes[store.KeyTranslations])
}

func TestImportSameFileTwiceKeepsKeysUnique(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	content := []byte(`{"x":"1","y":"2"}`)

	_, err := m.ImportFile(ctx, "de.json", content)
	require.NoError(t, err)
	_, err = m.ImportFile(ctx, "de.json", content)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, m.Keys())
	assert.Len(t, m.Translations(), 2)
}

func TestAddKeyNoOps(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)

	added, err := m.AddKey(ctx, "")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Empty(t, m.Keys())
	assert.Zero(t, st.Writes[store.KeyKeys])

	added, err = m.AddKey(ctx, "k")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = m.AddKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"k"}, m.Keys())
	assert.Equal(t, 1, st.Writes[store.KeyKeys])

	added, err = m.AddKey(ctx, " k")
	require.NoError(t, err)
	assert.True(t, added, "keys are compared exactly")
}

func TestAddKeyLeavesTranslationsAlone(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	_, err := m.AddLanguage(ctx, "en")
	require.NoError(t, err)

	_, err = m.AddKey(ctx, "fresh")
	require.NoError(t, err)

	tr, _ := m.Translation("en")
	assert.False(t, tr.Data.Has("fresh"))
}

func TestAddLanguage(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)

	added, err := m.AddLanguage(ctx, "")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Zero(t, st.Writes[store.KeyTranslations])

	added, err = m.AddLanguage(ctx, "de")
	require.NoError(t, err)
	assert.True(t, added)

	ts := m.Translations()
	require.Len(t, ts, 1)
	assert.Equal(t, "de", ts[0].Name)
	assert.Equal(t, 0, ts[0].Data.Len())
	assert.Equal(t, 1, st.Writes[store.KeyTranslations])
}

func TestDeleteKeyCascades(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	_, err := m.ImportFile(ctx, "en.json", []byte(`{"a":"A","b":"B"}`))
	require.NoError(t, err)
	_, err = m.ImportFile(ctx, "fr.json", []byte(`{"b":"Be"}`))
	require.NoError(t, err)

	require.NoError(t, m.DeleteKey(ctx, "b"))

	assert.Equal(t, []string{"a"}, m.Keys())
	for _, tr := range m.Translations() {
		assert.False(t, tr.Data.Has("b"), tr.Name)
	}

	stored, err := st.Translations(ctx)
	require.NoError(t, err)
	for _, tr := range stored {
		assert.False(t, tr.Data.Has("b"), tr.Name)
	}
}

func TestDeleteKeyMissing(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	_, err := m.ImportFile(ctx, "en.json", []byte(`{"a":"A"}`))
	require.NoError(t, err)
	writes := st.Writes[store.KeyKeys]

	require.NoError(t, m.DeleteKey(ctx, "missing"))
	assert.Equal(t, writes, st.Writes[store.KeyKeys])
	assert.Equal(t, []string{"a"}, m.Keys())

	require.NoError(t, m.DeleteKey(ctx, "a"))
	tr, _ := m.Translation("en")
	assert.Equal(t, 0, tr.Data.Len())
}

func TestDeleteTranslation(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	for _, name := range []string{"en", "fr", "en"} {
		_, err := m.AddLanguage(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, m.SetValue(ctx, "en", "k", "first"))
	writes := st.Writes[store.KeyTranslations]

	removed, err := m.DeleteTranslation(ctx, "de")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Len(t, m.Translations(), 3)
	assert.Equal(t, writes, st.Writes[store.KeyTranslations])

	removed, err = m.DeleteTranslation(ctx, "en")
	require.NoError(t, err)
	assert.True(t, removed)

	ts := m.Translations()
	require.Len(t, ts, 2)
	assert.Equal(t, "fr", ts[0].Name)
	assert.Equal(t, "en", ts[1].Name)
	assert.False(t, ts[1].Data.Has("k"), "the first en must be the one removed")
}

func TestDeleteSelectedTranslation(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	for _, name := range []string{"en", "fr", "en"} {
		_, err := m.AddLanguage(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, m.SetValue(ctx, "en", "k", "first"))

	m.SetSelectedTranslation("nope")
	removed, err := m.DeleteSelectedTranslation(ctx)
	require.NoError(t, err)
	assert.False(t, removed)

	m.SetSelectedTranslation("en")
	assert.Equal(t, "en", m.SelectedTranslation())
	removed, err = m.DeleteSelectedTranslation(ctx)
	require.NoError(t, err)
	assert.True(t, removed)

	ts := m.Translations()
	require.Len(t, ts, 2)
	assert.Equal(t, []string{"en", "fr"}, []string{ts[0].Name, ts[1].Name})
	assert.True(t, ts[0].Data.Has("k"), "the last en must be the one removed")
}

func TestSetValue(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	_, err := m.AddLanguage(ctx, "en")
	require.NoError(t, err)

	assert.ErrorIs(t, m.SetValue(ctx, "en", "", "v"), ErrEmptyKey)
	assert.ErrorIs(t, m.SetValue(ctx, "xx", "k", "v"), ErrTranslationNotFound)

	require.NoError(t, m.SetValue(ctx, "en", "k", "v"))
	assert.Equal(t, []string{"k"}, m.Keys())
	tr, _ := m.Translation("en")
	v, _ := tr.Data.Get("k")
	assert.Equal(t, "v", v)

	require.NoError(t, m.SetValue(ctx, "en", "k", "w"))
	assert.Equal(t, []string{"k"}, m.Keys())
}

func TestAccessorsReturnCopies(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	_, err := m.ImportFile(ctx, "en.json", []byte(`{"a":"A"}`))
	require.NoError(t, err)

	m.Keys()[0] = "mutated"
	m.Translations()[0].Data.Set("b", "B")
	tr, _ := m.Translation("en")
	tr.Data.Set("c", "C")

	assert.Equal(t, []string{"a"}, m.Keys())
	again, _ := m.Translation("en")
	assert.Equal(t, []string{"a"}, again.Data.Keys())
}

func TestLanguage(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)

	require.NoError(t, m.SetLanguage(ctx, "de"))
	require.NoError(t, m.SetLanguage(ctx, "de"))
	assert.Equal(t, "de", m.Language())
	assert.Equal(t, 1, st.Writes[store.KeyLanguage])

	lang, err := st.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, "de", lang)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	var got []Change
	unsubscribe := m.Subscribe(func(c Change) { got = append(got, c) })

	_, err := m.AddKey(ctx, "a")
	require.NoError(t, err)
	_, err = m.AddKey(ctx, "a")
	require.NoError(t, err)
	_, err = m.ImportFile(ctx, "en.json", []byte(`{"b":"B"}`))
	require.NoError(t, err)
	m.SetSelectedTranslation("en")
	require.NoError(t, m.SetLanguage(ctx, "fr"))

	unsubscribe()
	_, err = m.AddKey(ctx, "z")
	require.NoError(t, err)

	require.Equal(t, []Change{
		ChangeKeys,
		ChangeKeys | ChangeTranslations,
		ChangeSelection,
		ChangeLanguage,
	}, got)
	assert.Equal(t, "keys|translations", got[1].String())
}

func TestObserversSeePersistedState(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)

	var stored []string
	m.Subscribe(func(c Change) {
		if c.Has(ChangeKeys) {
			stored, _ = st.Keys(ctx)
		}
	})

	_, err := m.AddKey(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, []string{"persisted"}, stored)
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	boom := errors.New("quota exceeded")
	st.FailWrites = boom

	added, err := m.AddKey(ctx, "a")
	assert.True(t, added)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, m.Keys())

	st.FailWrites = nil
	_, err = m.AddKey(ctx, "b")
	require.NoError(t, err)

	stored, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored)
}

func TestImportFilesConcurrent(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, WithImportConcurrency(3))

	const n = 24
	sources := make([]ingest.Source, 0, n+1)
	want := map[string]bool{}
	for i := 0; i < n; i++ {
		shared := fmt.Sprintf("shared%d", i%5)
		own := fmt.Sprintf("own%d", i)
		want[shared], want[own] = true, true
		sources = append(sources, ingest.BytesSource{
			FileName: fmt.Sprintf("l%02d.json", i),
			Content:  []byte(fmt.Sprintf(`{%q:"s",%q:"o"}`, shared, own)),
		})
	}
	sources = append(sources, ingest.BytesSource{FileName: "broken.json", Content: []byte("not json")})

	results := m.ImportFiles(ctx, sources)
	require.Len(t, results, n+1)
	for i, res := range results[:n] {
		assert.Equal(t, fmt.Sprintf("l%02d.json", i), res.Name)
		require.NoError(t, res.Err)
		assert.Equal(t, fmt.Sprintf("l%02d", i), res.Translation.Name)
	}
	var perr *translation.ParseError
	assert.ErrorAs(t, results[n].Err, &perr)

	keys := m.Keys()
	assert.Len(t, keys, len(want))
	seen := map[string]bool{}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Equal(t, want, seen)

	assert.Len(t, m.Translations(), n)
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("t%d", i)
			_, _ = m.AddLanguage(ctx, name)
			_, _ = m.AddKey(ctx, fmt.Sprintf("k%d", i%4))
			_ = m.SetValue(ctx, name, "v", "x")
			_ = m.DeleteKey(ctx, "k0")
			_ = m.Translations()
		}()
	}
	wg.Wait()

	assert.Len(t, m.Translations(), 16)
	assert.NotContains(t, m.Keys(), "k0")
}

type errSource struct{ err error }

func (e errSource) Name() string                 { return "gone.json" }
func (e errSource) Size() int64                  { return -1 }
func (e errSource) Open() (io.ReadCloser, error) { return nil, e.err }

func TestImportFilesReadFailureIsolated(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	boom := errors.New("permission denied")

	results := m.ImportFiles(ctx, []ingest.Source{
		errSource{err: boom},
		ingest.BytesSource{FileName: "ok.json", Content: []byte(`{"k":"v"}`)},
	})

	assert.ErrorIs(t, results[0].Err, boom)
	assert.Nil(t, results[0].Translation)
	require.NoError(t, results[1].Err)
	assert.Equal(t, []string{"k"}, results[1].NewKeys)
	assert.Equal(t, []string{"k"}, m.Keys())
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	_, err := m.ImportFile(ctx, "en.json", []byte(`{"greeting":"hi","bye":"bye"}`))
	require.NoError(t, err)
	_, err = m.ImportFile(ctx, "fr.json", []byte(`{"greeting":"bonjour"}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Export(ctx, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	other, _ := newManager(t)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		_, err = other.ImportFile(ctx, f.Name, content)
		require.NoError(t, err)
	}

	orig, back := m.Translations(), other.Translations()
	require.Len(t, back, len(orig))
	for i := range orig {
		assert.Equal(t, orig[i].Name, back[i].Name)
		assert.Equal(t, orig[i].Data.Keys(), back[i].Data.Keys())
		assert.Equal(t, orig[i].Data.Map(), back[i].Data.Map())
	}
	assert.Equal(t, m.Keys(), other.Keys())
}

func TestImportFilesWithProgressReportsEveryRead(t *testing.T) {
	m, _ := newManager(t, WithImportConcurrency(2))
	ctx := context.Background()

	big := bytes.Repeat([]byte(" "), 3*ingest.ChunkSize)
	contents := [][]byte{
		[]byte(`{"a":"A"}`),
		append(append([]byte(`{"b":"B"}`), big...), '\n'),
		[]byte(`{"c":"C"}`),
	}
	sources := make([]ingest.Source, len(contents))
	for i, c := range contents {
		sources[i] = ingest.BytesSource{FileName: fmt.Sprintf("f%d.json", i), Content: c}
	}

	var mu sync.Mutex
	last := make(map[int]ingest.Progress)
	names := make(map[int]string)
	results := m.ImportFilesWithProgress(ctx, sources, func(i int, name string, p ingest.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := last[i]; ok {
			assert.GreaterOrEqual(t, p.Loaded, prev.Loaded, "progress went backwards for %s", name)
		}
		last[i] = p
		names[i] = name
	})

	for i, res := range results {
		require.NoError(t, res.Err)
		size := int64(len(contents[i]))
		assert.Equal(t, ingest.Progress{Loaded: size, Total: size}, last[i], "final progress of source %d", i)
		assert.Equal(t, fmt.Sprintf("f%d.json", i), names[i])
	}
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(m.Keys()))
}

func sortedKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}
