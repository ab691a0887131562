package rasterval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// GoogleStoragePrefix marks paths that are read through Google Storage.
const GoogleStoragePrefix = "gs://"

type ReaderAtCloser interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// IsGoogleStoragePath reports whether path refers to a Google Storage object.
func IsGoogleStoragePath(path string) bool {
	return strings.HasPrefix(path, GoogleStoragePrefix)
}

// MaybeOpenFromGoogleStorage opens a local file, or a Google Storage object if
// the path begins with gs://. The size of the file is returned alongside it.
// A missing object satisfies errors.Is(err, os.ErrNotExist) for local files
// and errors.Is(err, storage.ErrObjectNotExist) for Google Storage.
func MaybeOpenFromGoogleStorage(ctx context.Context, path string, client *storage.Client) (ReaderAtCloser, int64, error) {
	if IsGoogleStoragePath(path) {
		if client == nil {
			return nil, 0, pfx.Err(fmt.Errorf("%s: no Google Storage client was configured", path))
		}

		// Detect the bucket and the path to the actual file
		pathParts := strings.SplitN(strings.TrimPrefix(path, GoogleStoragePrefix), "/", 2)
		if len(pathParts) != 2 {
			return nil, 0, fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
		}

		handle := client.Bucket(pathParts[0]).Object(pathParts[1])

		wrappedHandle := &GSReaderAtCloser{
			ObjectHandle: handle,
			Context:      ctx,
		}

		// Make a hard call to get the filesize
		attrs, err := handle.Attrs(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", path, err)
		}

		return wrappedHandle, attrs.Size, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	fstat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}

	return f, fstat.Size(), nil
}

// OpenMaybeCompressed opens a local or Google Storage path and transparently
// decompresses it if its leading bytes match a known compression format.
func OpenMaybeCompressed(ctx context.Context, path string, client *storage.Client) (io.ReadCloser, error) {
	f, _, err := MaybeOpenFromGoogleStorage(ctx, path, client)
	if err != nil {
		return nil, err
	}

	r, err := MaybeDecompressReader(f)
	if err != nil {
		f.Close()
		return nil, pfx.Err(fmt.Errorf("%s: %s", path, err))
	}

	return &stackedReadCloser{Reader: r, closers: []io.Closer{r, f}}, nil
}

// ReadAllMaybeCompressed reads the whole of a possibly compressed local or
// Google Storage file into memory.
func ReadAllMaybeCompressed(ctx context.Context, path string, client *storage.Client) ([]byte, error) {
	rc, err := OpenMaybeCompressed(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// Decoders may swallow read errors, so we read everything up front to
	// see i/o failures here.
	return io.ReadAll(rc)
}

type stackedReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReadCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// IsNotExist reports whether err means a local file or Google Storage object
// does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrObjectNotExist)
}
