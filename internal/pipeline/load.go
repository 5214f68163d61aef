package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"sellout/internal/profile"
	"sellout/internal/util"
)

// ErrUnreadableFile marks files the loader cannot open at all. Distinct
// from the no-matching-source case so the final report can tell a corrupt
// upload from an unrecognized one.
var ErrUnreadableFile = errors.New("unreadable file")

// Table is one sheet read into memory, headers resolved per the profile.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

func (t *Table) HeaderIndex(name string) int {
	want := util.NormalizeKey(name)
	for i, h := range t.Headers {
		if util.NormalizeKey(h) == want {
			return i
		}
	}
	return -1
}

// SheetNames opens the workbook just far enough to list sheets for the
// sniffer. HTML-table exports report their single pseudo-sheet.
func SheetNames(blob []byte) ([]string, error) {
	if f, err := excelize.OpenReader(bytes.NewReader(blob)); err == nil {
		defer f.Close()
		return f.GetSheetList(), nil
	}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob)); err == nil && doc.Find("table").Length() > 0 {
		return []string{"html"}, nil
	}
	return nil, classifyUnreadable(blob)
}

// LoadTable reads the profile-selected sheet honoring the header offset,
// including the two-row header convention where a label spans row N and a
// subtype row N+1.
func LoadTable(blob []byte, p profile.SourceProfile) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		if tbl, herr := loadHTMLTable(blob, p); herr == nil {
			return tbl, nil
		}
		return nil, classifyUnreadable(blob)
	}
	defer f.Close()

	sheet, rows, err := selectSheet(f, p)
	if err != nil {
		return nil, err
	}

	headerRow := p.HeaderRow
	if headerRow >= len(rows) {
		return nil, fmt.Errorf("%w: header row %d beyond sheet end (%d rows)", ErrUnreadableFile, headerRow, len(rows))
	}

	headers := normalizeCells(rows[headerRow])
	dataStart := headerRow + 1
	if p.TwoRowHeader {
		if dataStart >= len(rows) {
			return nil, fmt.Errorf("%w: two-row header beyond sheet end", ErrUnreadableFile)
		}
		headers = mergeHeaderRows(headers, normalizeCells(rows[dataStart]))
		dataStart++
	}

	out := &Table{Sheet: sheet, Headers: headers}
	for _, row := range rows[dataStart:] {
		cells := normalizeCells(row)
		if rowEmpty(cells) {
			continue
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

func selectSheet(f *excelize.File, p profile.SourceProfile) (string, [][]string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableFile)
	}

	candidates := sheets
	if p.SheetNameContains != "" {
		matched := make([]string, 0, len(sheets))
		for _, s := range sheets {
			if util.ContainsNormalized(s, p.SheetNameContains) {
				matched = append(matched, s)
			}
		}
		if len(matched) > 0 {
			candidates = matched
		}
	}

	for _, sheet := range candidates {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		return sheet, rows, nil
	}
	return "", nil, fmt.Errorf("%w: no sheet with rows", ErrUnreadableFile)
}

// loadHTMLTable handles the "fake xls" exports some resellers produce: a
// spreadsheet extension over an HTML table.
func loadHTMLTable(blob []byte, p profile.SourceProfile) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table element")
	}

	var grid [][]string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, util.NormalizeCell(cell.Text()))
		})
		grid = append(grid, cells)
	})

	headerRow := p.HeaderRow
	if headerRow >= len(grid) {
		return nil, fmt.Errorf("header row beyond table end")
	}

	headers := grid[headerRow]
	dataStart := headerRow + 1
	if p.TwoRowHeader && dataStart < len(grid) {
		headers = mergeHeaderRows(headers, grid[dataStart])
		dataStart++
	}

	out := &Table{Sheet: "html", Headers: headers}
	for _, cells := range grid[dataStart:] {
		if rowEmpty(cells) {
			continue
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// classifyUnreadable names the reason a file would not open. PDFs show up
// in reseller mailboxes often enough to deserve their own message.
func classifyUnreadable(blob []byte) error {
	if len(blob) == 0 {
		return fmt.Errorf("%w: empty file", ErrUnreadableFile)
	}
	if bytes.HasPrefix(blob, []byte("%PDF-")) {
		if r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob))); err == nil {
			return fmt.Errorf("%w: PDF document (%d pages), not a spreadsheet", ErrUnreadableFile, r.NumPage())
		}
		return fmt.Errorf("%w: PDF document, not a spreadsheet", ErrUnreadableFile)
	}
	return fmt.Errorf("%w: not a recognized spreadsheet format", ErrUnreadableFile)
}

// mergeHeaderRows joins a spanned label row with its subtype row. Labels
// carry forward across blank cells, so "Sales" over "Units"/"Value" yields
// "sales units" and "sales value".
func mergeHeaderRows(top, bottom []string) []string {
	width := len(top)
	if len(bottom) > width {
		width = len(bottom)
	}
	out := make([]string, width)
	carried := ""
	for i := 0; i < width; i++ {
		label := cellAt(top, i)
		if label != "" {
			carried = label
		} else {
			label = carried
		}
		sub := cellAt(bottom, i)
		switch {
		case label == "":
			out[i] = sub
		case sub == "":
			out[i] = label
		default:
			out[i] = label + " " + sub
		}
	}
	return out
}

func normalizeCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = util.NormalizeCell(c)
	}
	return out
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func rowEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
