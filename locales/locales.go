// Package locales loads the locale catalogue shown next to translation
// names: an opaque JSON object keyed by language code.
package locales

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/minios-linux/lokedit/langmeta"
	"github.com/minios-linux/lokedit/logging"
	"github.com/minios-linux/lokedit/store"
)

// MaxSize caps the catalogue body.
const MaxSize = 4 << 20

// Loader fetches the catalogue once per Load call.
type Loader struct {
	Client *http.Client
	FS     afero.Fs
	Log    *slog.Logger
}

// NewLoader returns a loader using an HTTP client with the given timeout
// and the OS filesystem.
func NewLoader(timeout time.Duration, log *slog.Logger) *Loader {
	if log == nil {
		log = logging.Discard()
	}
	return &Loader{
		Client: &http.Client{Timeout: timeout},
		FS:     afero.NewOsFs(),
		Log:    log,
	}
}

// Load reads the catalogue from src, an http(s) URL or a file path, and
// saves it in st. When src is empty or cannot be read, the copy cached in st
// is returned, or the built-in catalogue when there is none. Failures are
// logged, never returned; the error result only reports a failed save.
func (l *Loader) Load(ctx context.Context, src string, st store.Store) (json.RawMessage, error) {
	if src != "" {
		data, err := l.fetch(ctx, src)
		if err == nil {
			l.Log.Debug("locale catalogue loaded", "source", src, "size", humanize.Bytes(uint64(len(data))))
			if err := st.SetLocales(ctx, data); err != nil {
				return data, fmt.Errorf("saving locale catalogue: %w", err)
			}
			return data, nil
		}
		l.Log.Warn("locale catalogue unavailable", "source", src, "err", err)
	}

	cached, err := st.Locales(ctx)
	if err != nil {
		l.Log.Warn("reading cached locale catalogue", "err", err)
	}
	if len(cached) > 0 {
		return cached, nil
	}
	return Builtin(), nil
}

// Load uses a default loader.
func Load(ctx context.Context, src string, st store.Store, timeout time.Duration, log *slog.Logger) (json.RawMessage, error) {
	return NewLoader(timeout, log).Load(ctx, src, st)
}

func (l *Loader) fetch(ctx context.Context, src string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if isURL(src) {
		data, err = l.fetchHTTP(ctx, src)
	} else {
		data, err = l.readFile(src)
	}
	if err != nil {
		return nil, err
	}
	return validate(data)
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func (l *Loader) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return readLimited(resp.Body)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := l.FS.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("catalogue larger than %s", humanize.Bytes(MaxSize))
	}
	return data, nil
}

var errNotObject = errors.New("catalogue is not a JSON object")

// validate checks data is a JSON object and returns it compacted.
func validate(data []byte) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("parsing catalogue: %w", err)
	}
	if obj == nil {
		return nil, errNotObject
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Builtin renders the language registry as {code: {name, flag}}.
func Builtin() json.RawMessage {
	cat := make(map[string]langmeta.Meta, len(langmeta.Registry))
	for _, code := range langmeta.Codes() {
		cat[code] = langmeta.Registry[code]
	}
	data, err := json.Marshal(cat)
	if err != nil {
		// Registry holds only strings.
		panic(err)
	}
	return data
}
