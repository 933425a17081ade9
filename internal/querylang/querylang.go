// Package querylang splits hybrid queries into their relational and
// visualization portions and renders chart specifications from local tables.
//
// The dialect is SQL with one optional trailing clause:
//
//	SELECT ... FROM ... VISUALIZE <mark> x=<column> y=<column> [color=<column>]
//
// The relational portion runs wherever the dispatcher decides; the clause
// always renders against the local engine.
package querylang

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vizql/vizql/internal/sqlexec"
	"github.com/vizql/vizql/internal/tabular"
)

type VizClause struct {
	Mark      string
	Encodings map[string]string
}

type Statement struct {
	SQL string
	Viz *VizClause
}

func (s Statement) HasViz() bool { return s.Viz != nil }

type ChartSpec map[string]any

// Language is the parser/renderer capability the dispatcher consumes.
type Language interface {
	Split(query string) (Statement, error)
	Render(ctx context.Context, db *sql.DB, viz *VizClause, sourceSQL string) (ChartSpec, tabular.Table, error)
}

var supportedMarks = map[string]bool{
	"point": true,
	"line":  true,
	"bar":   true,
	"area":  true,
}

var supportedChannels = map[string]bool{
	"x":     true,
	"y":     true,
	"color": true,
}

// Default implements Language for the built-in dialect.
type Default struct{}

// Split separates the relational SQL from a trailing VISUALIZE clause. The
// keyword is only recognized at the top level, outside string literals and
// parentheses.
func (Default) Split(query string) (Statement, error) {
	trimmed := sqlexec.StripTrailingSemicolons(query)
	index := topLevelKeywordIndex(trimmed, "VISUALIZE")
	if index < 0 {
		return Statement{SQL: trimmed}, nil
	}

	clauseText := strings.TrimSpace(trimmed[index+len("VISUALIZE"):])
	viz, err := parseVizClause(clauseText)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL: strings.TrimSpace(trimmed[:index]),
		Viz: viz,
	}, nil
}

// Render sources rows from sourceSQL on the local engine and builds a chart
// specification with the data inlined.
func (Default) Render(ctx context.Context, db *sql.DB, viz *VizClause, sourceSQL string) (ChartSpec, tabular.Table, error) {
	if viz == nil {
		return nil, tabular.Table{}, fmt.Errorf("visualization clause is required")
	}
	sourceSQL = sqlexec.StripTrailingSemicolons(sourceSQL)
	if sourceSQL == "" {
		return nil, tabular.Table{}, fmt.Errorf("visualization source is required")
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) AS viz_source", sourceSQL))
	if err != nil {
		return nil, tabular.Table{}, err
	}
	defer func() { _ = rows.Close() }()

	table, err := sqlexec.Collect(rows)
	if err != nil {
		return nil, tabular.Table{}, err
	}

	columnNames := map[string]bool{}
	for _, column := range table.Columns {
		columnNames[column.Name] = true
	}
	encoding := map[string]any{}
	for channel, field := range viz.Encodings {
		if !columnNames[field] {
			return nil, tabular.Table{}, fmt.Errorf("visualization references unknown column %q", field)
		}
		encoding[channel] = map[string]any{"field": field}
	}

	values := make([]map[string]any, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := make(map[string]any, len(table.Columns))
		for i, column := range table.Columns {
			record[column.Name] = row[i]
		}
		values = append(values, record)
	}

	spec := ChartSpec{
		"mark":     viz.Mark,
		"encoding": encoding,
		"data":     map[string]any{"values": values},
	}
	return spec, table, nil
}

func parseVizClause(clause string) (*VizClause, error) {
	fields := strings.Fields(clause)
	if len(fields) == 0 {
		return nil, fmt.Errorf("visualization clause is empty")
	}
	mark := strings.ToLower(fields[0])
	if !supportedMarks[mark] {
		return nil, fmt.Errorf("unsupported mark %q", fields[0])
	}

	encodings := map[string]string{}
	for _, field := range fields[1:] {
		channel, column, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("invalid encoding %q: expected channel=column", field)
		}
		channel = strings.ToLower(strings.TrimSpace(channel))
		column = strings.Trim(strings.TrimSpace(column), `"`)
		if !supportedChannels[channel] {
			return nil, fmt.Errorf("unsupported channel %q", channel)
		}
		if column == "" {
			return nil, fmt.Errorf("encoding %q is missing a column", field)
		}
		encodings[channel] = column
	}
	if encodings["x"] == "" {
		return nil, fmt.Errorf("visualization requires an x encoding")
	}
	return &VizClause{Mark: mark, Encodings: encodings}, nil
}

// topLevelKeywordIndex finds keyword outside quotes and parentheses,
// case-insensitively, bounded by non-identifier characters.
func topLevelKeywordIndex(text, keyword string) int {
	upper := strings.ToUpper(text)
	depth := 0
	inSingle := false
	inDouble := false
	for i := 0; i+len(keyword) <= len(upper); i++ {
		switch upper[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
			continue
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
			continue
		case '(':
			if !inSingle && !inDouble {
				depth++
			}
			continue
		case ')':
			if !inSingle && !inDouble {
				depth--
			}
			continue
		}
		if inSingle || inDouble || depth != 0 {
			continue
		}
		if upper[i:i+len(keyword)] != keyword {
			continue
		}
		if i > 0 && isIdentChar(upper[i-1]) {
			continue
		}
		end := i + len(keyword)
		if end < len(upper) && isIdentChar(upper[end]) {
			continue
		}
		return i
	}
	return -1
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
