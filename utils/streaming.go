package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultChunkSize is the copy granularity at which contexts are polled.
const DefaultChunkSize = 128 * 1024

// bufPool reuses byte buffers to reduce GC pressure.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// AcquireBuffer returns a reset buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// ReleaseBuffer returns b to the pool.  Callers must not use b after this call.
func ReleaseBuffer(b *bytes.Buffer) {
	// Cap large buffers to avoid pinning excessive memory.
	if b.Cap() > 8*1024*1024 {
		return
	}
	bufPool.Put(b)
}

// DrainReader reads all bytes from r into a pooled buffer and returns them.
// The caller owns the returned slice; pass the buffer back with ReleaseBuffer.
func DrainReader(ctx context.Context, r io.Reader, chunkSize int) (*bytes.Buffer, error) {
	buf := AcquireBuffer()
	if _, err := CopyContext(ctx, buf, r, chunkSize); err != nil {
		ReleaseBuffer(buf)
		return nil, err
	}
	return buf, nil
}

// ReadFile drains the named file, polling ctx between chunks.
func ReadFile(ctx context.Context, name string, chunkSize int) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := DrainReader(ctx, f, chunkSize)
	if err != nil {
		return nil, err
	}
	data := CloneBytes(buf.Bytes())
	ReleaseBuffer(buf)
	return data, nil
}

// CopyContext copies r to w in chunks and returns ctx.Err() as soon as the
// context is done between two chunks.
func CopyContext(ctx context.Context, w io.Writer, r io.Reader, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunk := make([]byte, chunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			written, werr := w.Write(chunk[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// WriteFileAtomic streams r into a temporary file beside name and renames it
// into place once the copy completes. Readers never observe a partial file.
func WriteFileAtomic(ctx context.Context, name string, r io.Reader, chunkSize int) (err error) {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = CopyContext(ctx, tmp, r, chunkSize); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("rename into %s: %w", name, err)
	}
	return nil
}

// LimitedReader wraps r and returns io.ErrUnexpectedEOF when r holds more
// than Max bytes. A stream of exactly Max bytes reads cleanly to io.EOF.
type LimitedReader struct {
	R   io.Reader
	Max int64
	n   int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.n >= l.Max && l.Max > 0 {
		var extra [1]byte
		n, err := l.R.Read(extra[:])
		if n > 0 {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	if l.Max > 0 {
		remain := l.Max - l.n
		if int64(len(p)) > remain {
			p = p[:remain]
		}
	}
	n, err := l.R.Read(p)
	l.n += int64(n)
	return n, err
}

// Limit wraps r in a LimitedReader when limit is positive.
func Limit(r io.Reader, limit int64) io.Reader {
	if limit <= 0 {
		return r
	}
	return &LimitedReader{R: r, Max: limit}
}
