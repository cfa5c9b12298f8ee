package rowsource

import "io"

// countingReader tracks bytes consumed from the underlying reader so the
// orchestrator can report byte-level progress on large files.
type countingReader struct {
	reader    io.Reader
	bytesRead int64
	total     int64
}

func newCountingReader(r io.Reader, total int64) *countingReader {
	return &countingReader{reader: r, total: total}
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

// progress returns percent read, 0 when the total size is unknown.
func (r *countingReader) progress() int {
	if r.total <= 0 {
		return 0
	}
	return int(r.bytesRead * 100 / r.total)
}
