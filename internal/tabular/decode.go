package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("tabular: unsupported file format")

// DecodeFile picks a decoder from the filename extension and returns the
// decoded table together with the format label used for metrics.
func DecodeFile(filename string, data []byte) (Table, string, error) {
	extension := strings.ToLower(filepath.Ext(filename))
	switch extension {
	case ".csv":
		table, err := DecodeCSV(bytes.NewReader(data))
		return table, "csv", err
	case ".parquet":
		table, err := DecodeParquet(data)
		return table, "parquet", err
	case ".json", ".jsonl", ".ndjson":
		table, err := DecodeJSON(bytes.NewReader(data))
		return table, "json", err
	default:
		return Table{}, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, extension)
	}
}
