package rowsource

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func collectRows(t *testing.T, s Stream) []Row {
	t.Helper()
	var rows []Row
	for {
		row, err := s.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, row)
	}
}

func TestCSVDelimiterSniffing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			"comma",
			"Case Number,Status\nC-1,Open\n",
			[]string{"Case Number", "Status"},
		},
		{
			"semicolon",
			"Case Number;Status\nC-1;Open\n",
			[]string{"Case Number", "Status"},
		},
		{
			"tab",
			"Case Number\tStatus\nC-1\tOpen\n",
			[]string{"Case Number", "Status"},
		},
		{
			"pipe",
			"Case Number|Status\nC-1|Open\n",
			[]string{"Case Number", "Status"},
		},
		{
			"quoted commas do not fool semicolon sniff",
			"Name;Notes\n\"Doe, Jane\";\"fine, thanks\"\n",
			[]string{"Name", "Notes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := OpenReader(strings.NewReader(tt.content))
			if err != nil {
				t.Fatalf("OpenReader: %v", err)
			}
			defer s.Close()

			got := s.Headers()
			if len(got) != len(tt.want) {
				t.Fatalf("headers = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("header[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}

			rows := collectRows(t, s)
			if len(rows) != 1 {
				t.Fatalf("got %d rows, want 1", len(rows))
			}
		})
	}
}

func TestCSVRaggedRows(t *testing.T) {
	content := "a,b,c\n1,2\n1,2,3,4\n1,2,3\n"
	s, err := OpenReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer s.Close()

	rows := collectRows(t, s)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	if len(rows[0].Issues) != 1 {
		t.Errorf("short row should carry one issue, got %v", rows[0].Issues)
	}
	if rows[0].Fields["c"] != "" {
		t.Errorf("short row field c = %q, want empty", rows[0].Fields["c"])
	}
	if len(rows[1].Issues) != 1 {
		t.Errorf("long row should carry one issue, got %v", rows[1].Issues)
	}
	if len(rows[2].Issues) != 0 {
		t.Errorf("exact row should carry no issues, got %v", rows[2].Issues)
	}
}

func TestCSVSkipsBlankLines(t *testing.T) {
	content := "a,b\n1,2\n\n   \n3,4\n"
	s, err := OpenReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer s.Close()

	rows := collectRows(t, s)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].Index != 2 {
		t.Errorf("second row index = %d, want 2", rows[1].Index)
	}
}

func TestHeaderNormalization(t *testing.T) {
	content := " Case Number ,,Status,Status,\nC-1,x,Open,Closed,\n"
	s, err := OpenReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer s.Close()

	want := []string{"Case Number", "column_2", "Status", "Status_2"}
	got := s.Headers()
	if len(got) != len(want) {
		t.Fatalf("headers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEncodings(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		header  string
		value   string
	}{
		{
			"utf8 bom",
			[]byte("\xef\xbb\xbfname\nJosé\n"),
			"name",
			"José",
		},
		{
			"utf16 le bom",
			encodeUTF16LE("name\nJosé\n", true),
			"name",
			"José",
		},
		{
			"utf16 le no bom",
			encodeUTF16LE("name\nJosé\n", false),
			"name",
			"José",
		},
		{
			"latin1",
			[]byte{'n', 'a', 'm', 'e', '\n', 'J', 'o', 's', 0xE9, '\n'},
			"name",
			"José",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := OpenReader(strings.NewReader(string(tt.content)))
			if err != nil {
				t.Fatalf("OpenReader: %v", err)
			}
			defer s.Close()

			if got := s.Headers()[0]; got != tt.header {
				t.Fatalf("header = %q, want %q", got, tt.header)
			}
			rows := collectRows(t, s)
			if len(rows) != 1 {
				t.Fatalf("got %d rows, want 1", len(rows))
			}
			if got := rows[0].Fields[tt.header]; got != tt.value {
				t.Errorf("value = %q, want %q", got, tt.value)
			}
		})
	}
}

func encodeUTF16LE(s string, bom bool) []byte {
	var out []byte
	if bom {
		out = append(out, 0xFF, 0xFE)
	}
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func TestEmptyFileUnreadable(t *testing.T) {
	if _, err := OpenReader(strings.NewReader("")); !errors.Is(err, ErrUnreadableSource) {
		t.Fatalf("got %v, want ErrUnreadableSource", err)
	}
}

func TestSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	content := "a,b\n1,2\n3,4\n5,6\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	headers, rows, err := Sample(path, 2)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("headers = %v", headers)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	// Sampling must not consume the source; a fresh open sees every row.
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if all := collectRows(t, s); len(all) != 3 {
		t.Fatalf("got %d rows after sample, want 3", len(all))
	}
}

func TestOpenXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := [][]any{
		{"Case Number", "Status", "Severity"},
		{"C-100", "Open", "High"},
		{"C-101", "Closed", nil},
	}
	for i, rowCells := range cells {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &rowCells); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if got := s.Headers(); len(got) != 3 || got[0] != "Case Number" {
		t.Fatalf("headers = %v", got)
	}
	rows := collectRows(t, s)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Fields["Status"] != "Open" {
		t.Errorf("row 1 Status = %q, want Open", rows[0].Fields["Status"])
	}
	if rows[1].Fields["Severity"] != "" {
		t.Errorf("row 2 Severity = %q, want empty", rows[1].Fields["Severity"])
	}
}

func TestOpenRejectsLegacyXLS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old-export.xls")
	content := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 512)...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrUnreadableSource) {
		t.Fatalf("got %v, want ErrUnreadableSource", err)
	}
	// The message must tell the operator how to fix the file.
	if !strings.Contains(err.Error(), ".xlsx") {
		t.Errorf("error does not point at re-exporting: %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.csv")); !errors.Is(err, ErrUnreadableSource) {
		t.Fatalf("got %v, want ErrUnreadableSource", err)
	}
}
