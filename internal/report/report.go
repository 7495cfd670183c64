// Package report exports the catalog tables to an xlsx workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TableSource provides the tables to export.
type TableSource interface {
	TableNames(ctx context.Context) ([]string, error)
	TableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// Exporter builds catalog workbooks.
type Exporter struct {
	source TableSource
	loc    *time.Location
	logger *zerolog.Logger
}

// NewExporter creates an exporter. Millisecond instant columns (suffix
// "_at" holding integers) are rendered in loc.
func NewExporter(source TableSource, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{source: source, loc: loc, logger: logger}
}

// Filename returns the report name for day, like "catalog_2024-01-31.xlsx".
func Filename(day time.Time) string {
	return fmt.Sprintf("catalog_%s.xlsx", day.Format("2006-01-02"))
}

// Write builds the workbook and writes it to w. One sheet per table.
func (e *Exporter) Write(ctx context.Context, w io.Writer) error {
	tables, err := e.source.TableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		return fmt.Errorf("no tables to export")
	}

	wb := NewWorkbook()
	defer wb.Close()

	for _, table := range tables {
		data, columns, err := e.source.TableData(ctx, table)
		if err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
		if err := wb.AddSheet(table); err != nil {
			return err
		}
		if err := wb.WriteHeader(columns); err != nil {
			return fmt.Errorf("table %s header: %w", table, err)
		}
		for _, row := range data {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = e.cell(col, row[col])
			}
			if err := wb.WriteRow(values); err != nil {
				return fmt.Errorf("table %s row: %w", table, err)
			}
		}
		e.logger.Debug().Str("table", table).Int("rows", len(data)).Msg("exported table")
	}

	if err := wb.Save(w); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

// WriteFile writes the report for now into dir and returns its path.
func (e *Exporter) WriteFile(ctx context.Context, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(dir, Filename(now.In(e.loc)))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := e.Write(ctx, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	e.logger.Info().Str("path", path).Msg("catalog report written")
	return path, nil
}

func (e *Exporter) cell(column string, v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case int64:
		if strings.HasSuffix(column, "_at") && column != "created_at" && column != "updated_at" {
			return time.UnixMilli(val).In(e.loc).Format("2006-01-02 15:04:05")
		}
		return val
	case time.Time:
		return val.In(e.loc).Format("2006-01-02 15:04:05")
	default:
		return val
	}
}
