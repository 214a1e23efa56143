package locales

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/lokedit/langmeta"
	"github.com/minios-linux/lokedit/store"
)

func testLoader(fs afero.Fs) *Loader {
	l := NewLoader(time.Second, nil)
	if fs != nil {
		l.FS = fs
	}
	return l
}

func TestLoadFromURLPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/static/locales.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{ "fr": { "name": "Français" } }`))
	}))
	defer srv.Close()

	ctx := context.Background()
	st := store.NewMemory()

	got, err := testLoader(nil).Load(ctx, srv.URL+"/static/locales.json", st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fr":{"name":"Français"}}`, string(got))

	cached, err := st.Locales(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fr":{"name":"Français"}}`, string(cached))
}

func TestLoadFallsBackToCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SetLocales(ctx, json.RawMessage(`{"de":{}}`)))
	writes := st.Writes[store.KeyLocales]

	got, err := testLoader(nil).Load(ctx, srv.URL, st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"de":{}}`, string(got))
	assert.Equal(t, writes, st.Writes[store.KeyLocales])
}

func TestLoadFallsBackToBuiltin(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	got, err := testLoader(afero.NewMemMapFs()).Load(ctx, "/missing/locales.json", st)
	require.NoError(t, err)
	assert.JSONEq(t, string(Builtin()), string(got))
	assert.Zero(t, st.Writes[store.KeyLocales])
}

func TestLoadEmptySourceUsesCache(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SetLocales(ctx, json.RawMessage(`{"it":{}}`)))

	got, err := testLoader(nil).Load(ctx, "", st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"it":{}}`, string(got))
}

func TestLoadFromFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/web/static/locales.json", []byte(`{"es":{"name":"Español"}}`), 0644))

	ctx := context.Background()
	st := store.NewMemory()
	got, err := testLoader(fs).Load(ctx, "/web/static/locales.json", st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"es":{"name":"Español"}}`, string(got))
	assert.Equal(t, 1, st.Writes[store.KeyLocales])
}

func TestLoadRejectsNonObject(t *testing.T) {
	for name, body := range map[string]string{
		"array":   `["en"]`,
		"null":    `null`,
		"garbage": `{"en":`,
	} {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/l.json", []byte(body), 0644))

			st := store.NewMemory()
			got, err := testLoader(fs).Load(context.Background(), "/l.json", st)
			require.NoError(t, err)
			assert.JSONEq(t, string(Builtin()), string(got))
			assert.Zero(t, st.Writes[store.KeyLocales])
		})
	}
}

func TestLoadReportsSaveFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/l.json", []byte(`{"en":{}}`), 0644))
	st := store.NewMemory()
	st.FailWrites = assert.AnError

	got, err := testLoader(fs).Load(context.Background(), "/l.json", st)
	assert.ErrorIs(t, err, assert.AnError)
	assert.JSONEq(t, `{"en":{}}`, string(got))
}

func TestBuiltin(t *testing.T) {
	var cat map[string]langmeta.Meta
	require.NoError(t, json.Unmarshal(Builtin(), &cat))
	assert.Len(t, cat, len(langmeta.Registry))
	assert.Equal(t, "Deutsch", cat["de"].Name)
	assert.NotEmpty(t, cat["de"].Flag)
}
