package database

import (
	"context"
	"fmt"
	"time"
)

// Optimize runs the dialect's housekeeping statements. For postgres the named
// tables are vacuumed and analysed individually.
func (d *DB) Optimize(ctx context.Context, tables ...string) error {
	ctx = ensureContext(ctx)
	var statements []string
	switch d.dialect {
	case Postgres:
		for _, table := range tables {
			statements = append(statements, "VACUUM ANALYZE "+table)
		}
	default:
		statements = []string{"PRAGMA optimize", "VACUUM"}
	}
	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("optimize %q: %w", stmt, err)
		}
	}
	return nil
}

// timestampLayout is fixed width so stored values sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp formats t the way every table stores time columns.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// NullableTimestamp is Timestamp for optional columns.
func NullableTimestamp(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return Timestamp(*t)
}

// ParseTimestamp reads a stored time column.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
