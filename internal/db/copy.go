package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is anything that speaks the COPY protocol: a pool or an open tx.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyRows streams items into table, turning each one into a row with toRow.
// The column order of toRow must match columns.
func CopyRows[T any](ctx context.Context, dst Copier, table string, columns []string, items []T, toRow func(T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	src := pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		row := toRow(items[i])
		if len(row) != len(columns) {
			return nil, eris.Errorf("db: row %d has %d values for %d columns", i, len(row), len(columns))
		}
		return row, nil
	})
	n, err := dst.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy %d rows into %s", len(items), table)
	}
	return n, nil
}
