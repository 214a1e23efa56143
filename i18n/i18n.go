// Package i18n translates lokedit's own messages.
//
// Catalogues are gettext .po files embedded from
// locales/<lang>/LC_MESSAGES/lokedit.po and read with gotext. The active
// language is the one stored by the editor; when none is stored it is taken
// from the environment the way GNU gettext does.
//
//	i18n.Init(m.Language())
//	logInfo(i18n.T("Added key %q"), key)
//	logError(i18n.N("%d file failed", "%d files failed", n), n)
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

const domain = "lokedit"

var (
	po      *gotext.Locale
	current string
)

// Init selects the message catalogue for code. Codes may be BCP 47 tags as
// stored by the editor ("pt-BR") or gettext locales ("pt_BR.UTF-8"). An
// empty code falls back to the environment.
func Init(code string) {
	lang := Normalize(code)
	if lang == "" {
		lang = detectLanguage()
	}

	current = lang
	po = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Language returns the normalized code Init selected, or "" before Init.
func Language() string {
	return current
}

// Normalize turns a language code into gettext form: the encoding suffix is
// dropped and "-" becomes "_" ("pt-BR" -> "pt_BR", "ru_RU.UTF-8" -> "ru_RU").
func Normalize(code string) string {
	if idx := strings.IndexByte(code, '.'); idx >= 0 {
		code = code[:idx]
	}
	return strings.ReplaceAll(strings.TrimSpace(code), "-", "_")
}

// Available lists the languages with an embedded catalogue, sorted.
func Available() []string {
	entries, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() {
			langs = append(langs, e.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// HasCatalogue reports whether messages for code are translated, either by
// an exact catalogue or by one for its base language.
func HasCatalogue(code string) bool {
	lang := Normalize(code)
	base, _, _ := strings.Cut(lang, "_")
	for _, a := range Available() {
		if a == lang || a == base {
			return true
		}
	}
	return false
}

// T translates msgid, returning it unchanged when no translation exists.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	// Get formats when given vars; an empty list returns the message as is.
	return po.Get(msgid, noVars...)
}

var noVars []any

// N translates a message with plural forms.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// BundleName is the file name of the web UI message bundle for a language
// code, served under /i18n/.
func BundleName(code string) string {
	return "locale-" + code + ".json"
}

// detectLanguage follows GNU gettext priority:
// LANGUAGE > LC_ALL > LC_MESSAGES > LANG.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			// colon-separated preference list
			val, _, _ = strings.Cut(val, ":")
		}
		val = Normalize(val)
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		return val
	}
	return "en"
}
