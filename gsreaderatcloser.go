package rasterval

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// GSReaderAtCloser decorates a Google Storage object handle with Read, ReadAt
// and Close.
type GSReaderAtCloser struct {
	*storage.ObjectHandle
	Context context.Context
	Reader  *storage.Reader
}

func (o *GSReaderAtCloser) Read(p []byte) (n int, err error) {
	if o.Reader == nil {
		o.Reader, err = o.NewReader(o.Context)
		if err != nil {
			return 0, err
		}
	}

	return o.Reader.Read(p)
}

// ReadAt satisfies io.ReaderAt. Each call issues its own range request of
// len(p) bytes.
func (o *GSReaderAtCloser) ReadAt(p []byte, offset int64) (n int, err error) {
	rdr, err := o.NewRangeReader(o.Context, offset, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rdr.Close()

	return io.ReadFull(rdr, p)
}

// Close releases the streaming reader, if one was opened by Read.
func (o *GSReaderAtCloser) Close() error {
	if o.Reader == nil {
		return nil
	}

	err := o.Reader.Close()
	o.Reader = nil

	return err
}
