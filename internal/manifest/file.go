package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"dupfind/internal/logging"
)

const bufferSize = 64 * 1024

// IsCompressed reports whether path names a zstd manifest.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// WriteFile stores rows at path. The file must not exist unless appendTo is
// set, in which case rows are added after the existing content and the
// header is only written to an empty file. A file this call created is
// removed again if writing fails.
func WriteFile(path string, rows []Row, appendTo bool) (err error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if appendTo {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrOutputExists, path)
		}
		return fmt.Errorf("create manifest: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat manifest: %w", err)
	}
	created := info.Size() == 0

	defer func() {
		if err != nil && created && !appendTo {
			os.Remove(path)
		}
	}()

	w, err := newWriter(f, IsCompressed(path))
	if err != nil {
		f.Close()
		return fmt.Errorf("open manifest writer: %w", err)
	}
	if err := Write(w, rows, created); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	logging.Info("Manifest written to %s (%d rows)", path, len(rows))
	return nil
}

// ReadFile loads a manifest written by WriteFile.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	r, err := newReader(f, IsCompressed(path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open manifest reader: %w", err)
	}
	defer r.Close()

	rows, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// writerCloseForwarder closes each layer of a writer stack, innermost last.
type writerCloseForwarder struct {
	closers []func() error
	io.Writer
}

func (c *writerCloseForwarder) Close() error {
	var err error
	for _, closer := range c.closers {
		if e := closer(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

type readerCloseForwarder struct {
	closers []func() error
	io.Reader
}

func (c *readerCloseForwarder) Close() error {
	var err error
	for _, closer := range c.closers {
		if e := closer(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

func newWriter(f *os.File, compressed bool) (io.WriteCloser, error) {
	if !compressed {
		bufw := bufio.NewWriterSize(f, bufferSize)
		return &writerCloseForwarder{
			closers: []func() error{bufw.Flush, f.Sync, f.Close},
			Writer:  bufw,
		}, nil
	}

	bufw := bufio.NewWriterSize(f, bufferSize)
	zw, err := zstd.NewWriter(bufw,
		zstd.WithEncoderCRC(true),
		zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	return &writerCloseForwarder{
		closers: []func() error{zw.Close, bufw.Flush, f.Sync, f.Close},
		Writer:  zw,
	}, nil
}

func newReader(f *os.File, compressed bool) (io.ReadCloser, error) {
	if !compressed {
		return &readerCloseForwarder{
			closers: []func() error{f.Close},
			Reader:  bufio.NewReaderSize(f, bufferSize),
		}, nil
	}

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	return &readerCloseForwarder{
		closers: []func() error{func() error {
			zr.Close()
			return nil
		}, f.Close},
		Reader: bufio.NewReaderSize(zr, bufferSize),
	}, nil
}
