package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Values the CSV decoder treats as null, matching common analytics exports.
var csvNullValues = map[string]bool{"": true, "NA": true}

// DecodeCSV reads a header row plus records and infers a column type from the
// observed values: BIGINT when every non-null value parses as an integer,
// DOUBLE for numerics, BOOLEAN, otherwise VARCHAR.
func DecodeCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, fmt.Errorf("csv: missing header row")
	}
	if err != nil {
		return Table{}, fmt.Errorf("csv: read header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("csv: read record: %w", err)
		}
		records = append(records, record)
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: strings.TrimSpace(name), Type: inferCSVType(records, i)}
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		row := make([]any, len(columns))
		for i, column := range columns {
			row[i] = convertCSVValue(record[i], column.Type)
		}
		rows = append(rows, row)
	}
	return Table{Columns: columns, Rows: rows}, nil
}

func inferCSVType(records [][]string, index int) string {
	sawValue := false
	isInt := true
	isFloat := true
	isBool := true
	for _, record := range records {
		value := record[index]
		if csvNullValues[value] {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			isFloat = false
		}
		if _, err := strconv.ParseBool(value); err != nil {
			isBool = false
		}
	}
	switch {
	case !sawValue:
		return "VARCHAR"
	case isInt:
		return "BIGINT"
	case isFloat:
		return "DOUBLE"
	case isBool:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func convertCSVValue(value, columnType string) any {
	if csvNullValues[value] {
		return nil
	}
	switch columnType {
	case "BIGINT":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil
		}
		return parsed
	case "DOUBLE":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil
		}
		return parsed
	case "BOOLEAN":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil
		}
		return parsed
	default:
		return value
	}
}
