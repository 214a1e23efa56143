// Package logging builds lokedit's slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

func colors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// Handler returns a tint handler writing to out. Error attributes are
// highlighted.
func Handler(debug bool, out io.Writer) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return tint.NewHandler(out, &tint.Options{
		AddSource: debug,
		Level:     level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if _, ok := attr.Value.Any().(error); attr.Key == "err" || ok {
				return tint.Attr(9, attr)
			}
			return attr
		},
		TimeFormat: time.RFC3339,
		NoColor:    !colors(out),
	})
}

// New returns a logger writing to out and installs it as the slog default.
func New(debug bool, out io.Writer) *slog.Logger {
	l := slog.New(Handler(debug, out))
	slog.SetDefault(l)
	return l
}

// Discard returns a logger that drops everything. Components built without
// a logger use it.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
