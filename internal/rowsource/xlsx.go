package rowsource

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxStream reads the first worksheet of an XLSX workbook through the
// excelize row iterator, presenting the same shape as the CSV stream.
type xlsxStream struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
	index   int
}

func openXLSX(r io.Reader) (*xlsxStream, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableSource)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	// First non-blank row is the header.
	var headers []string
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			rows.Close()
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
		}
		if blankRecord(cells) {
			continue
		}
		headers = normalizeHeaders(cells)
		break
	}
	if len(headers) == 0 {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("%w: no columns detected", ErrUnreadableSource)
	}

	return &xlsxStream{file: f, rows: rows, headers: headers}, nil
}

func (s *xlsxStream) Headers() []string { return s.headers }

// Progress is unknown for workbooks; the row iterator has no total.
func (s *xlsxStream) Progress() int { return 0 }

func (s *xlsxStream) Close() error {
	err := s.rows.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *xlsxStream) Next() (Row, error) {
	for s.rows.Next() {
		cells, err := s.rows.Columns()
		if err != nil {
			s.index++
			return Row{
				Index:  s.index,
				Fields: map[string]string{},
				Issues: []string{fmt.Sprintf("unreadable row: %v", err)},
			}, nil
		}
		if blankRecord(cells) {
			continue
		}

		s.index++
		row := Row{Index: s.index, Fields: make(map[string]string, len(s.headers))}

		// Trailing empty cells are dropped by the iterator, so a short row
		// is normal for spreadsheets; only surplus cells get an issue.
		if len(cells) > len(s.headers) {
			row.Issues = append(row.Issues, fmt.Sprintf(
				"row has %d columns, expected %d; extra values dropped",
				len(cells), len(s.headers)))
		}

		for i, h := range s.headers {
			if i < len(cells) {
				row.Fields[h] = strings.TrimSpace(cells[i])
			} else {
				row.Fields[h] = ""
			}
		}
		return row, nil
	}
	if err := s.rows.Error(); err != nil && !errors.Is(err, io.EOF) {
		return Row{}, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	return Row{}, io.EOF
}
