package tabular

import (
	"strings"
	"testing"
)

func TestDecodeCSVInfersTypes(t *testing.T) {
	input := "id,price,active,label\n1,9.5,true,widget\n2,10,false,gadget\n"
	table, err := DecodeCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}

	wantTypes := map[string]string{
		"id":     "BIGINT",
		"price":  "DOUBLE",
		"active": "BOOLEAN",
		"label":  "VARCHAR",
	}
	if len(table.Columns) != len(wantTypes) {
		t.Fatalf("columns = %v", table.Columns)
	}
	for _, column := range table.Columns {
		if wantTypes[column.Name] != column.Type {
			t.Fatalf("column %q type = %q, want %q", column.Name, column.Type, wantTypes[column.Name])
		}
	}

	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	if table.Rows[0][0] != int64(1) {
		t.Fatalf("id value = %v (%T)", table.Rows[0][0], table.Rows[0][0])
	}
	if table.Rows[0][1] != 9.5 {
		t.Fatalf("price value = %v", table.Rows[0][1])
	}
	if table.Rows[0][2] != true {
		t.Fatalf("active value = %v", table.Rows[0][2])
	}
	if table.Rows[1][3] != "gadget" {
		t.Fatalf("label value = %v", table.Rows[1][3])
	}
}

func TestDecodeCSVNulls(t *testing.T) {
	input := "id,note\n1,NA\n2,\n3,hello\n"
	table, err := DecodeCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if table.Rows[0][1] != nil || table.Rows[1][1] != nil {
		t.Fatalf("expected NA and empty string to decode as null, got %v / %v", table.Rows[0][1], table.Rows[1][1])
	}
	if table.Rows[2][1] != "hello" {
		t.Fatalf("note value = %v", table.Rows[2][1])
	}
}

func TestDecodeCSVHeaderOnly(t *testing.T) {
	table, err := DecodeCSV(strings.NewReader("a,b\n"))
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if len(table.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(table.Rows))
	}
	for _, column := range table.Columns {
		if column.Type != "VARCHAR" {
			t.Fatalf("empty column %q type = %q, want VARCHAR", column.Name, column.Type)
		}
	}
}

func TestDecodeCSVEmptyInput(t *testing.T) {
	if _, err := DecodeCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for input without a header")
	}
}

func TestDecodeFileUnsupportedExtension(t *testing.T) {
	if _, _, err := DecodeFile("data.xlsx", []byte("x")); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestDecodeFilePicksFormat(t *testing.T) {
	table, format, err := DecodeFile("data.csv", []byte("a\n1\n"))
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if format != "csv" {
		t.Fatalf("format = %q", format)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
}
