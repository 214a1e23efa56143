package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/minios-linux/lokedit/editor"
	"github.com/minios-linux/lokedit/export"
	"github.com/minios-linux/lokedit/i18n"
	"github.com/minios-linux/lokedit/ingest"
	"github.com/minios-linux/lokedit/translation"
)

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func returnData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func errorData(w http.ResponseWriter, err error, code int) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// errorCode maps editor and parse errors to HTTP status codes.
func errorCode(err error) int {
	var perr *translation.ParseError
	switch {
	case errors.Is(err, editor.ErrTranslationNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrEmptyKey), errors.As(err, &perr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	errorData(w, err, errorCode(err))
}

func parseJSONBody[T any](r *http.Request, out *T) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	return nil
}

// urlParam returns the unescaped value of a route parameter. Routes match
// the escaped path (see routeEscaped), so this is the only decoding step.
func urlParam(r *http.Request, name string) (string, error) {
	return url.PathUnescape(chi.URLParam(r, name))
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

func (s *Server) getKeys(w http.ResponseWriter, r *http.Request) {
	returnData(w, s.editor.Keys())
}

func (s *Server) addKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	added, err := s.editor.AddKey(r.Context(), body.Key)
	if err != nil {
		s.fail(w, err)
		return
	}
	returnData(w, map[string]bool{"added": added})
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	key, err := urlParam(r, "key")
	if err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	if err := s.editor.DeleteKey(r.Context(), key); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Translations
// ---------------------------------------------------------------------------

func (s *Server) getTranslations(w http.ResponseWriter, r *http.Request) {
	returnData(w, s.editor.Translations())
}

func (s *Server) getTranslation(w http.ResponseWriter, r *http.Request) {
	name, err := urlParam(r, "name")
	if err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	t, ok := s.editor.Translation(name)
	if !ok {
		s.fail(w, fmt.Errorf("%w: %s", editor.ErrTranslationNotFound, name))
		return
	}
	returnData(w, t)
}

func (s *Server) addLanguage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	added, err := s.editor.AddLanguage(r.Context(), body.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	returnData(w, map[string]bool{"added": added})
}

func (s *Server) deleteTranslation(w http.ResponseWriter, r *http.Request) {
	name, err := urlParam(r, "name")
	if err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	removed, err := s.editor.DeleteTranslation(r.Context(), name)
	if err != nil {
		s.fail(w, err)
		return
	}
	returnData(w, map[string]bool{"removed": removed})
}

func (s *Server) setValue(w http.ResponseWriter, r *http.Request) {
	name, err := urlParam(r, "name")
	if err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	key, err := urlParam(r, "key")
	if err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	if err := s.editor.SetValue(r.Context(), name, key, body.Value); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Import / export
// ---------------------------------------------------------------------------

// uploadSource streams one multipart file into the ingest pipeline.
type uploadSource struct {
	fh *multipart.FileHeader
}

func (u uploadSource) Name() string                 { return u.fh.Filename }
func (u uploadSource) Size() int64                  { return u.fh.Size }
func (u uploadSource) Open() (io.ReadCloser, error) { return u.fh.Open() }

type importResult struct {
	File        string   `json:"file"`
	Translation string   `json:"translation,omitempty"`
	Entries     int      `json:"entries"`
	NewKeys     []string `json:"new_keys"`
	Error       string   `json:"error,omitempty"`
}

func (s *Server) importFiles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		errorData(w, fmt.Errorf("reading upload: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		errorData(w, errors.New(`no files in form field "files"`), http.StatusBadRequest)
		return
	}

	sources := make([]ingest.Source, len(files))
	for i, fh := range files {
		sources[i] = uploadSource{fh: fh}
	}

	results := s.editor.ImportFilesWithProgress(r.Context(), sources, func(_ int, name string, p ingest.Progress) {
		s.log.Debug("reading upload", "file", name, "loaded", p.Loaded, "total", p.Total)
	})
	out := make([]importResult, len(results))
	failed := 0
	for i, res := range results {
		s.metrics.observeImport(res.Err)
		out[i] = importResult{File: res.Name, NewKeys: res.NewKeys}
		if out[i].NewKeys == nil {
			out[i].NewKeys = []string{}
		}
		if res.Translation != nil {
			out[i].Translation = res.Translation.Name
			out[i].Entries = res.Translation.Data.Len()
		}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			failed++
		}
	}
	if failed > 0 {
		s.log.Warn("import finished with errors", "files", len(results), "failed", failed)
	}

	returnData(w, struct {
		Results []importResult `json:"results"`
		Failed  int            `json:"failed"`
	}{out, failed})
}

func (s *Server) exportArchive(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.editor.Export(r.Context(), &buf); err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.exportBytes.Add(float64(buf.Len()))

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(s.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ---------------------------------------------------------------------------
// Selection, language, catalogue
// ---------------------------------------------------------------------------

func (s *Server) getSelection(w http.ResponseWriter, r *http.Request) {
	returnData(w, map[string]string{"name": s.editor.SelectedTranslation()})
}

func (s *Server) setSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	s.editor.SetSelectedTranslation(body.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteSelection(w http.ResponseWriter, r *http.Request) {
	removed, err := s.editor.DeleteSelectedTranslation(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	returnData(w, map[string]bool{"removed": removed})
}

func (s *Server) getLanguage(w http.ResponseWriter, r *http.Request) {
	returnData(w, map[string]string{"language": s.editor.Language()})
}

func (s *Server) setLanguage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Language string `json:"language"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, err, http.StatusBadRequest)
		return
	}
	if err := s.editor.SetLanguage(r.Context(), body.Language); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getLocales(w http.ResponseWriter, r *http.Request) {
	locales := s.locales
	if len(locales) == 0 {
		locales = json.RawMessage("{}")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(locales)
}

var bundlePattern = regexp.MustCompile(`^locale-([A-Za-z0-9_-]+)\.json$`)

func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	if s.web == nil {
		http.NotFound(w, r)
		return
	}
	bundle := chi.URLParam(r, "bundle")
	m := bundlePattern.FindStringSubmatch(bundle)
	if m == nil || i18n.BundleName(m[1]) != bundle {
		http.NotFound(w, r)
		return
	}

	data, err := afero.ReadFile(s.web, "i18n/"+bundle)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(data)
}
