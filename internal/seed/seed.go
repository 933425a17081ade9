// Package seed loads operator-provisioned base datasets that every new
// session starts with. Sources are local files or keys in the configured
// object store; formats are whatever the tabular decoders accept.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vizql/vizql/internal/session"
	"github.com/vizql/vizql/internal/storage"
	"github.com/vizql/vizql/internal/tabular"
)

const objectScheme = "s3://"

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_]+`)

type Loader struct {
	Store  storage.ObjectReader
	Logger *slog.Logger
}

// Load resolves every path into a decoded seed table. Paths prefixed with
// s3:// are object-store keys; everything else is a local file. Seed names
// are derived from the file base name, so two seeds with the same base name
// conflict.
func (l *Loader) Load(ctx context.Context, paths []string) ([]session.SeedTable, error) {
	seeds := make([]session.SeedTable, 0, len(paths))
	used := map[string]string{}

	for _, path := range paths {
		data, filename, err := l.read(ctx, path)
		if err != nil {
			return nil, err
		}

		table, format, err := tabular.DecodeFile(filename, data)
		if err != nil {
			return nil, fmt.Errorf("decode seed %q: %w", path, err)
		}

		name := tableName(filename)
		if previous, taken := used[name]; taken {
			return nil, fmt.Errorf("seed %q: table name %q already used by %q", path, name, previous)
		}
		used[name] = path

		if l.Logger != nil {
			l.Logger.Info("seed dataset loaded",
				slog.String("path", path),
				slog.String("table", name),
				slog.String("format", format),
				slog.Int("rows", len(table.Rows)),
			)
		}
		seeds = append(seeds, session.SeedTable{Name: name, Table: table})
	}
	return seeds, nil
}

func (l *Loader) read(ctx context.Context, path string) ([]byte, string, error) {
	if key, ok := strings.CutPrefix(path, objectScheme); ok {
		if l.Store == nil {
			return nil, "", fmt.Errorf("seed %q: no object store configured", path)
		}
		reader, err := l.Store.Get(ctx, key)
		if err != nil {
			return nil, "", fmt.Errorf("fetch seed %q: %w", path, err)
		}
		defer func() { _ = reader.Close() }()

		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, "", fmt.Errorf("read seed %q: %w", path, err)
		}
		return data, filepath.Base(key), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read seed %q: %w", path, err)
	}
	return data, filepath.Base(path), nil
}

// tableName turns a file base name into a plain lowercase identifier. Seeds
// are operator-managed base tables and carry no upload prefix.
func tableName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	name := invalidNameChars.ReplaceAllString(strings.ToLower(base), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "seed"
	}
	return name
}
