package pipeline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"sellout/internal/profile"
)

func mkXLSX(sheet string, rows [][]any) []byte {
	f := excelize.NewFile()
	def := f.GetSheetName(0)
	if sheet != "" && sheet != def {
		_ = f.SetSheetName(def, sheet)
	}
	target := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(target, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func mkXLSXSheets(sheets map[string][][]any, order []string) []byte {
	f := excelize.NewFile()
	def := f.GetSheetName(0)
	for i, name := range order {
		if i == 0 {
			_ = f.SetSheetName(def, name)
		} else {
			_, _ = f.NewSheet(name)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				_ = f.SetCellValue(name, cell, v)
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestLoadTableFlat(t *testing.T) {
	blob := mkXLSX("Sheet1", [][]any{
		{"EAN", "QTY", "AMOUNT"},
		{"7350154320008", 1, "202,48"},
		{"", "", ""},
		{"7350154320015", 2, "99,00"},
	})

	table, err := LoadTable(blob, profile.SourceProfile{})
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Headers) != 3 || table.Headers[0] != "EAN" {
		t.Fatalf("headers=%v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows=%d, blank row should be dropped", len(table.Rows))
	}
}

func TestLoadTableHeaderOffset(t *testing.T) {
	blob := mkXLSX("Sheet1", [][]any{
		{"Sell-through report"},
		{"generated 18.08.2025"},
		{"Barcode", "Style", "Units", "Value"},
		{"7350154320008", "BBSC100", 3, "60"},
	})

	table, err := LoadTable(blob, profile.SourceProfile{HeaderRow: 2})
	if err != nil {
		t.Fatal(err)
	}
	if table.Headers[0] != "Barcode" {
		t.Fatalf("headers=%v", table.Headers)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows=%d", len(table.Rows))
	}
}

func TestLoadTableTwoRowHeader(t *testing.T) {
	blob := mkXLSX("Sheet1", [][]any{
		{"", "Product", "", "Sales", ""},
		{"", "EAN", "SKU", "Units", "Value"},
		{"", "7350154320008", "BBSC100", 2, "40"},
	})

	table, err := LoadTable(blob, profile.SourceProfile{HeaderRow: 0, TwoRowHeader: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"", "Product EAN", "Product SKU", "Sales Units", "Sales Value"}
	for i, w := range want {
		if table.Headers[i] != w {
			t.Fatalf("headers[%d]=%q want %q (all %v)", i, table.Headers[i], w, table.Headers)
		}
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows=%d", len(table.Rows))
	}
}

func TestLoadTableSheetSelection(t *testing.T) {
	blob := mkXLSXSheets(map[string][][]any{
		"Summary":  {{"nothing useful"}},
		"SA Sales": {{"EANCode", "SalesQuantity"}, {"7350154459", 2}},
	}, []string{"Summary", "SA Sales"})

	table, err := LoadTable(blob, profile.SourceProfile{SheetNameContains: "sales"})
	if err != nil {
		t.Fatal(err)
	}
	if table.Sheet != "SA Sales" {
		t.Fatalf("sheet=%s", table.Sheet)
	}
}

func TestLoadTableHTMLFallback(t *testing.T) {
	html := []byte(`<html><body><table>
<tr><th>EANCode</th><th>SalesQuantity</th><th>SalesAmount</th></tr>
<tr><td>7350154459</td><td>2</td><td>&euro; 116</td></tr>
</table></body></html>`)

	table, err := LoadTable(html, profile.SourceProfile{})
	if err != nil {
		t.Fatal(err)
	}
	if table.Headers[0] != "EANCode" {
		t.Fatalf("headers=%v", table.Headers)
	}
	if len(table.Rows) != 1 || table.Rows[0][1] != "2" {
		t.Fatalf("rows=%v", table.Rows)
	}
}

func TestLoadTableUnreadable(t *testing.T) {
	_, err := LoadTable([]byte{0x01, 0x02, 0x03}, profile.SourceProfile{})
	if !errors.Is(err, ErrUnreadableFile) {
		t.Fatalf("err=%v", err)
	}

	_, err = LoadTable(nil, profile.SourceProfile{})
	if !errors.Is(err, ErrUnreadableFile) {
		t.Fatalf("empty err=%v", err)
	}
}

func TestLoadTablePDFDiagnostic(t *testing.T) {
	_, err := LoadTable([]byte("%PDF-1.7 not really a pdf body"), profile.SourceProfile{})
	if !errors.Is(err, ErrUnreadableFile) {
		t.Fatalf("err=%v", err)
	}
	if got := err.Error(); !bytes.Contains([]byte(got), []byte("PDF")) {
		t.Fatalf("message should name the PDF cause: %s", got)
	}
}

func TestSheetNames(t *testing.T) {
	blob := mkXLSXSheets(map[string][][]any{
		"TDSheet": {{"x"}},
		"Other":   {{"y"}},
	}, []string{"TDSheet", "Other"})

	names, err := SheetNames(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "TDSheet" {
		t.Fatalf("names=%v", names)
	}

	if _, err := SheetNames([]byte{0xff}); !errors.Is(err, ErrUnreadableFile) {
		t.Fatalf("err=%v", err)
	}
}
