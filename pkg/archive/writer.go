// Package archive builds and verifies the streaming tar+gzip containers
// produced by file backups.
package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const copyChunkSize = 32 * 1024

var (
	// ErrCancelled is returned by Append when the caller's context was
	// cancelled before or while the entry was written. The entry may be
	// truncated in the archive.
	ErrCancelled = errors.New("archive write cancelled")

	ErrClosed = errors.New("archive writer is closed")
)

// ReadError is returned by Append when the source failed while its payload
// was being copied. The entry was padded to its announced size, so the
// archive stays readable and further entries may follow.
type ReadError struct {
	Name string
	Err  error
}

func (e *ReadError) Error() string {
	return "Unable to read " + e.Name + ": " + e.Err.Error()
}

func (e *ReadError) Cause() error {
	return e.Err
}

func IsReadError(err error) bool {
	_, ok := err.(*ReadError)
	return ok
}

type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

type request struct {
	ctx    context.Context
	header *tar.Header
	body   io.Reader
	result chan error
}

// Writer appends entries to a single tar+gzip stream. The stream is owned by
// one goroutine fed through a bounded queue, so callers may Append
// concurrently while header and payload of one entry are always written
// back to back.
type Writer struct {
	path string
	file *os.File
	gz   *gzip.Writer
	tw   *tar.Writer

	mu       sync.RWMutex
	closed   bool
	requests chan request
	done     chan struct{}

	// err is only touched by the writer goroutine until done is closed
	err error
}

// Create truncates or creates path and starts the writer goroutine. queue is
// the number of pending entries allowed before Append blocks.
func Create(path string, queue int) (*Writer, error) {
	if queue < 1 {
		queue = 1
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open archive file %s", path)
	}

	gz := gzip.NewWriter(f)

	w := &Writer{
		path:     path,
		file:     f,
		gz:       gz,
		tw:       tar.NewWriter(gz),
		requests: make(chan request, queue),
		done:     make(chan struct{}),
	}

	go w.loop()

	return w, nil
}

func (w *Writer) Path() string {
	return w.path
}

// Append writes one regular file entry whose payload is read from body. It
// blocks until the entry is fully written or the write was abandoned.
func (w *Writer) Append(ctx context.Context, entry Entry, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrClosed
	}

	req := request{
		ctx:    ctx,
		header: header(entry),
		body:   body,
		result: make(chan error, 1),
	}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return ErrCancelled
	}

	return <-req.result
}

// Close stops the writer goroutine and flushes tar, gzip and the file. It is
// safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.requests)
	w.mu.Unlock()

	<-w.done

	return multierr.Combine(
		errors.Wrap(w.tw.Close(), "Unable to finish tar stream"),
		errors.Wrap(w.gz.Close(), "Unable to finish gzip stream"),
		errors.Wrap(w.file.Close(), "Unable to close archive file"),
	)
}

func (w *Writer) loop() {
	defer close(w.done)

	for req := range w.requests {
		req.result <- w.write(req)
	}
}

func (w *Writer) write(req request) error {
	if w.err != nil {
		return w.err
	}

	if req.ctx.Err() != nil {
		return ErrCancelled
	}

	if err := w.tw.WriteHeader(req.header); err != nil {
		w.err = errors.Wrapf(err, "Unable to write header for %s", req.header.Name)
		return w.err
	}

	written, err := w.copy(req.ctx, req.body, req.header.Size)
	if err == ErrCancelled {
		// the entry is now shorter than its header; nothing may follow it
		w.err = ErrCancelled
		return err
	}

	readErr, isReadErr := err.(*ReadError)
	if err != nil && !isReadErr {
		w.err = errors.Wrapf(err, "Unable to write %s", req.header.Name)
		return w.err
	}

	// The source shrank after it was stat'ed or failed mid-read: pad so the
	// next header stays aligned with what this header announced.
	if remaining := req.header.Size - written; remaining > 0 {
		if err := w.pad(remaining); err != nil {
			w.err = errors.Wrapf(err, "Unable to pad %s", req.header.Name)
			return w.err
		}
	}

	if isReadErr {
		readErr.Name = req.header.Name
		return readErr
	}

	return nil
}

// copy moves at most size bytes from body into the tar stream, checking ctx
// between chunks. EOF ends the payload early, other read errors come back as
// *ReadError; write errors are fatal.
func (w *Writer) copy(ctx context.Context, body io.Reader, size int64) (int64, error) {
	buf := make([]byte, copyChunkSize)
	var written int64

	for written < size {
		if ctx.Err() != nil {
			return written, ErrCancelled
		}

		chunk := buf
		if left := size - written; left < int64(len(chunk)) {
			chunk = chunk[:left]
		}

		n, rerr := body.Read(chunk)
		if n > 0 {
			m, werr := w.tw.Write(chunk[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, &ReadError{Err: rerr}
		}
	}

	return written, nil
}

func (w *Writer) pad(n int64) error {
	zero := make([]byte, copyChunkSize)

	for n > 0 {
		chunk := zero
		if n < int64(len(chunk)) {
			chunk = chunk[:n]
		}

		m, err := w.tw.Write(chunk)
		n -= int64(m)
		if err != nil {
			return err
		}
	}

	return nil
}

func header(entry Entry) *tar.Header {
	return &tar.Header{
		Name:     EntryName(entry.Path),
		Size:     entry.Size,
		Mode:     0644,
		ModTime:  entry.ModTime,
		Typeflag: tar.TypeReg,
	}
}

// EntryName is the name a source path is stored under: the absolute path in
// slash form with the leading separator and any volume name removed.
func EntryName(path string) string {
	path = filepath.ToSlash(strings.TrimPrefix(path, filepath.VolumeName(path)))
	return strings.TrimLeft(path, "/")
}
