// Package export packs a translation set into a zip archive, one
// <name>.json entry per translation.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/minios-linux/lokedit/translation"
)

// Write streams the archive for translations to w. Any failing entry fails
// the whole export.
func Write(ctx context.Context, w io.Writer, translations []*translation.Translation) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, t := range translations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addEntry(zw, t); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	return nil
}

// Bytes returns the archive for translations.
func Bytes(ctx context.Context, translations []*translation.Translation) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(ctx, &buf, translations); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EntryName is the archive entry name for a translation. Path separators in
// the name become "_", so every entry sits at the archive root.
func EntryName(t *translation.Translation) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, t.Name) + ".json"
}

func addEntry(zw *zip.Writer, t *translation.Translation) error {
	data := t.Data
	if data == nil {
		data = translation.NewData()
	}
	content, err := data.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serializing %s: %w", t.Name, err)
	}

	f, err := zw.Create(EntryName(t))
	if err != nil {
		return fmt.Errorf("creating archive entry %s: %w", EntryName(t), err)
	}
	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("writing archive entry %s: %w", EntryName(t), err)
	}
	return nil
}

// FileName returns the download name for an archive made at t:
// locales_<year>_<month>_<day>__<hour>_<minute>.zip, with no zero padding.
func FileName(t time.Time) string {
	return fmt.Sprintf("locales_%d_%d_%d__%d_%d.zip",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
