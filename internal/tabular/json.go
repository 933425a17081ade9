package tabular

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// DecodeJSON accepts either a JSON array of objects or newline-delimited
// objects (NDJSON). Column order is sorted by name; JSON objects carry no
// usable field order.
func DecodeJSON(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("json: read: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Table{}, fmt.Errorf("json: empty document")
	}

	var records []map[string]any
	if trimmed[0] == '[' {
		records, err = decodeJSONArray(trimmed)
	} else {
		records, err = decodeNDJSON(trimmed)
	}
	if err != nil {
		return Table{}, err
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("json: no records")
	}

	keys := map[string]bool{}
	for _, record := range records {
		for key := range record {
			keys[key] = true
		}
	}
	names := make([]string, 0, len(keys))
	for key := range keys {
		names = append(names, key)
	}
	sort.Strings(names)

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: inferJSONType(records, name)}
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		row := make([]any, len(columns))
		for i, column := range columns {
			row[i] = convertJSONValue(record[column.Name], column.Type)
		}
		rows = append(rows, row)
	}
	return Table{Columns: columns, Rows: rows}, nil
}

func decodeJSONArray(data []byte) ([]map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("json: decode array: %w", err)
	}
	return records, nil
}

func decodeNDJSON(data []byte) ([]map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var records []map[string]any
	for {
		var record map[string]any
		err := decoder.Decode(&record)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("json: decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func inferJSONType(records []map[string]any, key string) string {
	sawValue := false
	isInt := true
	isNumber := true
	isBool := true
	for _, record := range records {
		value, ok := record[key]
		if !ok || value == nil {
			continue
		}
		sawValue = true
		switch typed := value.(type) {
		case json.Number:
			isBool = false
			if _, err := typed.Int64(); err != nil {
				isInt = false
			}
		case bool:
			isInt = false
			isNumber = false
		default:
			isInt = false
			isNumber = false
			isBool = false
		}
	}
	switch {
	case !sawValue:
		return "VARCHAR"
	case isInt:
		return "BIGINT"
	case isNumber:
		return "DOUBLE"
	case isBool:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func convertJSONValue(value any, columnType string) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case json.Number:
		switch columnType {
		case "BIGINT":
			parsed, err := typed.Int64()
			if err != nil {
				return nil
			}
			return parsed
		case "DOUBLE":
			parsed, err := typed.Float64()
			if err != nil {
				return nil
			}
			return parsed
		default:
			return typed.String()
		}
	case bool:
		if columnType == "BOOLEAN" {
			return typed
		}
		return fmt.Sprintf("%t", typed)
	case string:
		return typed
	default:
		// Nested arrays/objects are stored as their JSON text.
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	}
}
