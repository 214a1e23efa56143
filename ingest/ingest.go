// Package ingest reads user-selected files as text.
//
// Each read runs in its own goroutine and reports progress on a channel.
// Reads share no state, so any number may run at once.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ChunkSize is the read buffer size; one progress event is emitted per chunk.
const ChunkSize = 32 * 1024

// Progress reports how much of a source has been read.
// Total is -1 when the size is unknown.
type Progress struct {
	Loaded int64
	Total  int64
}

// Source is a readable file-like input.
type Source interface {
	// Name is the file name shown to the user and used to name the translation.
	Name() string
	// Size is the content length in bytes, or -1 if unknown.
	Size() int64
	// Open starts reading the content.
	Open() (io.ReadCloser, error)
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

// FileSource reads a file from an afero filesystem.
type FileSource struct {
	FS   afero.Fs
	Path string
}

func (f FileSource) Name() string { return filepath.Base(f.Path) }

func (f FileSource) Size() int64 {
	info, err := f.FS.Stat(f.Path)
	if err != nil || info.IsDir() {
		return -1
	}
	return info.Size()
}

func (f FileSource) Open() (io.ReadCloser, error) {
	file, err := f.FS.Open(f.Path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err == nil && info.IsDir() {
		file.Close()
		return nil, &os.PathError{Op: "read", Path: f.Path, Err: errIsDir}
	}
	return file, nil
}

// BytesSource is an in-memory source, such as an uploaded form file.
type BytesSource struct {
	FileName string
	Content  []byte
}

func (b BytesSource) Name() string { return b.FileName }

func (b BytesSource) Size() int64 { return int64(len(b.Content)) }

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Content)), nil
}

var errIsDir = errors.New("is a directory")

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// Read is an in-flight read of one source.
type Read struct {
	name     string
	progress chan Progress
	done     chan struct{}
	text     string
	err      error
}

// ReadAsText starts reading src in the background. Cancelling ctx stops the
// read at the next chunk boundary.
func ReadAsText(ctx context.Context, src Source) *Read {
	r := &Read{
		name:     src.Name(),
		progress: make(chan Progress, 16),
		done:     make(chan struct{}),
	}
	go r.run(ctx, src)
	return r
}

// Name returns the source name.
func (r *Read) Name() string { return r.name }

// Progress returns the progress channel. It is closed when the read ends.
// Events are dropped when the receiver falls behind; the last event sent
// before close always reflects the final count on success.
func (r *Read) Progress() <-chan Progress { return r.progress }

// Done is closed when the read has finished.
func (r *Read) Done() <-chan struct{} { return r.done }

// Wait blocks until the read finishes and returns the text or the read error.
func (r *Read) Wait() (string, error) {
	<-r.done
	return r.text, r.err
}

func (r *Read) run(ctx context.Context, src Source) {
	defer close(r.done)
	defer close(r.progress)

	rc, err := src.Open()
	if err != nil {
		r.err = err
		return
	}
	defer rc.Close()

	total := src.Size()
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, ChunkSize)
	var loaded int64
	for {
		if err := ctx.Err(); err != nil {
			r.err = err
			return
		}
		n, err := rc.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			loaded += int64(n)
			r.report(Progress{Loaded: loaded, Total: total}, false)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			r.err = err
			return
		}
	}

	r.report(Progress{Loaded: loaded, Total: total}, true)
	r.text = decodeText(buf.Bytes())
}

// report sends p without blocking. The final event makes room by
// discarding a stale one if needed.
func (r *Read) report(p Progress, final bool) {
	select {
	case r.progress <- p:
		return
	default:
	}
	if !final {
		return
	}
	select {
	case <-r.progress:
	default:
	}
	select {
	case r.progress <- p:
	default:
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText strips a UTF-8 byte order mark.
func decodeText(b []byte) string {
	return string(bytes.TrimPrefix(b, utf8BOM))
}
