package rowsource

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// delimiterCandidates are tried in order when sniffing; comma wins ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// sniffLines is how many lines are examined to pick a delimiter.
const sniffLines = 10

type csvStream struct {
	closer   io.Closer
	counting *countingReader
	reader   *csv.Reader
	headers  []string
	index    int
}

// newCSVStream decodes, sniffs the delimiter, and reads the header row.
// A file with no parseable header is unreadable.
func newCSVStream(rc io.ReadCloser, size int64) (*csvStream, error) {
	counting := newCountingReader(rc, size)
	decoded := bufio.NewReaderSize(decodeToUTF8(counting), 32*1024)

	delim, err := sniffDelimiter(decoded)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(decoded)
	r.Comma = delim
	// Exports pad or drop trailing cells row to row; length repair happens
	// in Next so a ragged row never kills the stream.
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: no header row", ErrUnreadableSource)
	}
	headers := normalizeHeaders(header)
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no columns detected", ErrUnreadableSource)
	}

	return &csvStream{
		closer:   rc,
		counting: counting,
		reader:   r,
		headers:  headers,
	}, nil
}

func (s *csvStream) Headers() []string { return s.headers }

func (s *csvStream) Progress() int { return s.counting.progress() }

func (s *csvStream) Close() error { return s.closer.Close() }

func (s *csvStream) Next() (Row, error) {
	for {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		if err != nil {
			// Per-record parse errors (stray quotes etc.) are surfaced as a
			// row issue, not a stream failure.
			s.index++
			return Row{
				Index:  s.index,
				Fields: map[string]string{},
				Issues: []string{fmt.Sprintf("unparseable row: %v", err)},
			}, nil
		}

		if blankRecord(record) {
			continue
		}

		s.index++
		row := Row{Index: s.index, Fields: make(map[string]string, len(s.headers))}

		if len(record) < len(s.headers) {
			row.Issues = append(row.Issues, fmt.Sprintf(
				"row has %d columns, expected %d; missing values treated as empty",
				len(record), len(s.headers)))
		} else if len(record) > len(s.headers) {
			row.Issues = append(row.Issues, fmt.Sprintf(
				"row has %d columns, expected %d; extra values dropped",
				len(record), len(s.headers)))
		}

		for i, h := range s.headers {
			if i < len(record) {
				row.Fields[h] = strings.TrimSpace(record[i])
			} else {
				row.Fields[h] = ""
			}
		}
		return row, nil
	}
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sniffDelimiter peeks at the first lines and picks the candidate that
// yields the most consistent multi-column split. Quoted sections are
// ignored while counting so embedded commas do not mislead the sniff.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	sample, err := br.Peek(32 * 1024)
	if len(sample) == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
		}
		return 0, fmt.Errorf("%w: empty file", ErrUnreadableSource)
	}

	lines := splitSniffLines(string(sample), sniffLines)

	best := ','
	bestScore := -1
	for _, cand := range delimiterCandidates {
		score := delimiterScore(lines, cand)
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}
	return best, nil
}

func splitSniffLines(sample string, max int) []string {
	raw := strings.Split(sample, "\n")
	lines := make([]string, 0, max)
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == max {
			break
		}
	}
	return lines
}

// delimiterScore rewards delimiters that split every sniffed line into the
// same column count greater than one.
func delimiterScore(lines []string, delim rune) int {
	if len(lines) == 0 {
		return 0
	}
	first := countUnquoted(lines[0], delim)
	if first == 0 {
		return 0
	}
	consistent := true
	for _, line := range lines[1:] {
		if countUnquoted(line, delim) != first {
			consistent = false
			break
		}
	}
	score := first
	if consistent {
		score += 100
	}
	return score
}

// countUnquoted counts delim occurrences outside double-quoted sections.
func countUnquoted(line string, delim rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			count++
		}
	}
	return count
}

// normalizeHeaders trims header cells, names blank ones column_N, and
// suffixes duplicates so every column has a unique key.
func normalizeHeaders(raw []string) []string {
	// Trailing empty header cells are a spreadsheet artifact, not columns.
	end := len(raw)
	for end > 0 && strings.TrimSpace(raw[end-1]) == "" {
		end--
	}
	if end == 0 {
		return nil
	}

	headers := make([]string, 0, end)
	seen := make(map[string]int, end)
	for i, h := range raw[:end] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		}
		seen[h] = 1
		headers = append(headers, h)
	}
	return headers
}
