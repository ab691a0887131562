package rasterval

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeCompress
	DataTypeBZip2
	DataTypeZlib
)

// ErrUnsupportedCompression is returned for streams in a recognized format
// that cannot be decompressed.
var ErrUnsupportedCompression = errors.New("unsupported compression")

func (d DataType) String() string {
	switch d {
	case DataTypeNoCompression:
		return "uncompressed"
	case DataTypeGzip:
		return "gzip"
	case DataTypeZip:
		return "zip"
	case DataTypeXZ:
		return "xz"
	case DataTypeCompress:
		return "compress (.Z)"
	case DataTypeBZip2:
		return "bzip2"
	case DataTypeZlib:
		return "zlib"
	}

	return "invalid"
}

// Checked in this order. Byte code signatures from
// https://stackoverflow.com/a/19127748/199475
var byteCodeSigs = []struct {
	dt  DataType
	sig []byte
}{
	{DataTypeGzip, []byte{0x1f, 0x8b, 0x08}},
	{DataTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}},
	{DataTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{DataTypeCompress, []byte{0x1f, 0x9d}},
	{DataTypeBZip2, []byte{0x42, 0x5a, 0x68}},
}

// DetectDataType matches the leading bytes of a stream against a set of
// known compression signatures.
func DetectDataType(header []byte) DataType {
	for _, v := range byteCodeSigs {
		if bytes.HasPrefix(header, v.sig) {
			return v.dt
		}
	}

	if isZlibHeader(header) {
		return DataTypeZlib
	}

	return DataTypeNoCompression
}

// MaybeDecompressReader sniffs the first bytes of r and, if they match a known
// compression format, returns a decompressing reader. Otherwise the data is
// returned as-is. Closing the result does not close r.
func MaybeDecompressReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)

	header, err := br.Peek(6)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	switch DetectDataType(header) {
	case DataTypeGzip:
		return gzip.NewReader(br)
	case DataTypeZip:
		zr := zipstream.NewReader(br)
		if _, err := zr.Next(); err != nil {
			return nil, err
		}
		return &readCloserFaker{zr}, nil
	case DataTypeBZip2:
		return &readCloserFaker{bzip2.NewReader(br)}, nil
	case DataTypeXZ:
		reader, err := xz.NewReader(br, 0)
		if err != nil {
			return nil, err
		}
		return &readCloserFaker{reader}, nil
	case DataTypeZlib:
		return zlib.NewReader(br)
	case DataTypeCompress:
		return nil, fmt.Errorf("%w: Unix compress (.Z) streams cannot be read; recompress with gzip", ErrUnsupportedCompression)
	}

	// No data type detected. For now, we assume this is uncompressed.
	return &readCloserFaker{br}, nil
}

// isZlibHeader checks for the RFC 1950 header of a deflate stream with a 32K
// window and no preset dictionary. Smaller windows are not accepted: their
// headers include plain text such as "80".
func isZlibHeader(h []byte) bool {
	if len(h) < 2 || h[0] != 0x78 {
		return false
	}

	flg := h[1]

	return flg&0x20 == 0 && (uint16(h[0])<<8|uint16(flg))%31 == 0
}

// readCloserFaker "upgrades" readers that don't need to be closed
type readCloserFaker struct {
	io.Reader
}

func (c *readCloserFaker) Close() error {
	return nil
}
