package rasterval

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDetectDataType(t *testing.T) {
	for _, v := range []struct {
		header []byte
		want   DataType
	}{
		{[]byte{0x1f, 0x8b, 0x08, 0x00}, DataTypeGzip},
		{[]byte{0x50, 0x4b, 0x03, 0x04, 0x14}, DataTypeZip},
		{[]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, DataTypeXZ},
		{[]byte{0x42, 0x5a, 0x68, 0x39}, DataTypeBZip2},
		{[]byte{0x1f, 0x9d, 0x90}, DataTypeCompress},
		{[]byte{0x78, 0x9c, 0x4b}, DataTypeZlib},
		{[]byte{0x78, 0xda}, DataTypeZlib},
		{[]byte("x,y\n"), DataTypeNoCompression},
		{[]byte("80,1\n"), DataTypeNoCompression},
		{[]byte("II*\x00"), DataTypeNoCompression},
		{nil, DataTypeNoCompression},
	} {
		if got := DetectDataType(v.header); got != v.want {
			t.Errorf("header %x: got %s, expected %s", v.header, got, v.want)
		}
	}
}

func TestMaybeDecompressReaderGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte("data\treference\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	rc, err := MaybeDecompressReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "data\treference\n" {
		t.Errorf("got %q", out)
	}
}

func TestMaybeDecompressReaderPassthrough(t *testing.T) {
	// Shorter than the sniffed header length
	rc, err := MaybeDecompressReader(strings.NewReader("abc"))
	if err != nil {
		t.Fatal(err)
	}

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "abc" {
		t.Errorf("got %q", out)
	}
}

func TestMaybeDecompressReaderZlib(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte("data,reference\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	rc, err := MaybeDecompressReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "data,reference\n" {
		t.Errorf("got %q", out)
	}
}

func TestMaybeDecompressReaderUnixCompress(t *testing.T) {
	_, err := MaybeDecompressReader(bytes.NewReader([]byte{0x1f, 0x9d, 0x90, 0x61, 0x00}))
	if !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("got %v, expected ErrUnsupportedCompression", err)
	}
}
