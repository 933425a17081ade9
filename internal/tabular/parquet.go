package tabular

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// DecodeParquet reads a flat parquet file into a Table. Nested or repeated
// fields are rejected; the local engine has no natural column type for them.
func DecodeParquet(data []byte) (Table, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Table{}, fmt.Errorf("parquet: open: %w", err)
	}

	fields := file.Schema().Fields()
	columns := make([]Column, 0, len(fields))
	for _, field := range fields {
		if !field.Leaf() {
			return Table{}, fmt.Errorf("parquet: nested field %q is not supported", field.Name())
		}
		columns = append(columns, Column{Name: field.Name(), Type: duckdbTypeForParquet(field.Type())})
	}
	if len(columns) == 0 {
		return Table{}, fmt.Errorf("parquet: file has no columns")
	}

	var rows [][]any
	for _, rowGroup := range file.RowGroups() {
		rowReader := rowGroup.Rows()
		buffer := make([]parquet.Row, 256)
		for {
			n, err := rowReader.ReadRows(buffer)
			for _, raw := range buffer[:n] {
				row := make([]any, len(columns))
				for _, value := range raw {
					index := value.Column()
					if index < 0 || index >= len(columns) {
						continue
					}
					row[index] = parquetValue(value)
				}
				rows = append(rows, row)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = rowReader.Close()
				return Table{}, fmt.Errorf("parquet: read rows: %w", err)
			}
			if n == 0 {
				break
			}
		}
		if err := rowReader.Close(); err != nil {
			return Table{}, fmt.Errorf("parquet: close row reader: %w", err)
		}
	}

	return Table{Columns: columns, Rows: rows}, nil
}

func duckdbTypeForParquet(parquetType parquet.Type) string {
	switch parquetType.Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32, parquet.Int64:
		return "BIGINT"
	case parquet.Float, parquet.Double:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func parquetValue(value parquet.Value) any {
	if value.IsNull() {
		return nil
	}
	switch value.Kind() {
	case parquet.Boolean:
		return value.Boolean()
	case parquet.Int32:
		return int64(value.Int32())
	case parquet.Int64:
		return value.Int64()
	case parquet.Float:
		return float64(value.Float())
	case parquet.Double:
		return value.Double()
	default:
		return value.String()
	}
}
