// Package rowsource turns uploaded export files (CSV or XLSX) into an
// ordered, lazy stream of header-keyed rows.
//
// Both readers yield the same Stream shape so the rest of the pipeline never
// cares which format the file arrived in. Streams are restartable by calling
// Open again; Sample reads the first n rows without consuming the caller's
// stream.
package rowsource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnreadableSource is returned when a file cannot be parsed at all:
// corrupt archive, undecodable bytes, or no detectable columns. Row-level
// problems never produce this error; they are reported on the Row instead.
var ErrUnreadableSource = errors.New("unreadable source file")

// Row is one parsed record. Fields is keyed by header name. Issues carries
// row-scoped parse problems (short row padded, long row truncated) that the
// pipeline records as warnings rather than aborting the stream.
type Row struct {
	Index  int
	Fields map[string]string
	Issues []string
}

// Stream is an ordered, lazy sequence of rows. Next returns io.EOF when the
// file is exhausted. Close releases the underlying file handle. Progress is
// percent of the source consumed, 0 when the reader cannot tell.
type Stream interface {
	Headers() []string
	Next() (Row, error)
	Progress() int
	Close() error
}

// xlsxMagic is the ZIP local-file signature; XLSX files are ZIP archives.
var xlsxMagic = []byte{'P', 'K', 0x03, 0x04}

// oleMagic opens every legacy binary .xls workbook (the OLE Compound File
// header). The spreadsheet reader only understands the XLSX ZIP format.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}

// Open opens path and returns a row stream, dispatching on file extension
// and content sniffing. CSV covers any delimited text variant.
func Open(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	magic := make([]byte, 4)
	n, _ := io.ReadFull(f, magic)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	if n == 4 && bytes.Equal(magic, oleMagic) {
		f.Close()
		return nil, fmt.Errorf("%w: legacy binary .xls workbook, re-export as .xlsx or CSV", ErrUnreadableSource)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" || ext == ".xls" || (n == 4 && bytes.Equal(magic, xlsxMagic)) {
		defer f.Close()
		return openXLSX(f)
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	stream, err := newCSVStream(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	return stream, nil
}

// OpenReader builds a CSV stream from an in-memory reader. XLSX content is
// detected by the ZIP signature and routed to the spreadsheet reader.
func OpenReader(r io.Reader) (Stream, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	if bytes.HasPrefix(buf, oleMagic) {
		return nil, fmt.Errorf("%w: legacy binary .xls workbook, re-export as .xlsx or CSV", ErrUnreadableSource)
	}
	if bytes.HasPrefix(buf, xlsxMagic) {
		return openXLSX(bytes.NewReader(buf))
	}
	return newCSVStream(io.NopCloser(bytes.NewReader(buf)), int64(len(buf)))
}

// Sample opens path and returns its headers plus up to n parsed rows. The
// format detector and field mapper work from this without holding a stream
// open.
func Sample(path string, n int) ([]string, []Row, error) {
	stream, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer stream.Close()

	rows := make([]Row, 0, n)
	for len(rows) < n {
		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return stream.Headers(), rows, nil
}
