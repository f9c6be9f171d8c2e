package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

const restoreTimeout = 5 * time.Second

// WithRelaxedIntegrity runs fn in a single transaction with foreign-key
// enforcement suspended. Enforcement is switched off on a dedicated connection
// before the transaction begins and switched back on before the connection
// returns to the pool, whatever fn does.
func (d *DB) WithRelaxedIntegrity(ctx context.Context, fn func(*Tx) error) (err error) {
	ctx = ensureContext(ctx)
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	relax, restore := integrityStatements(d.dialect)
	if _, err := conn.ExecContext(ctx, relax); err != nil {
		return fmt.Errorf("relax integrity: %w", err)
	}
	defer func() {
		// The caller's context may already be cancelled here.
		restoreCtx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		defer cancel()
		if _, restoreErr := conn.ExecContext(restoreCtx, restore); restoreErr != nil {
			// Poison the connection so a relaxed session never re-enters the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			err = errors.Join(err, fmt.Errorf("restore integrity: %w", restoreErr))
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx, dialect: d.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ForeignKeysEnabled reports whether a fresh pooled connection enforces
// foreign keys. It is meaningful for sqlite only and reports true otherwise.
func (d *DB) ForeignKeysEnabled(ctx context.Context) (bool, error) {
	if d.dialect != SQLite {
		var role string
		if err := d.db.QueryRowContext(ensureContext(ctx), "SHOW session_replication_role").Scan(&role); err != nil {
			return false, err
		}
		return role == "origin", nil
	}
	var enabled sql.NullInt64
	if err := d.db.QueryRowContext(ensureContext(ctx), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return false, err
	}
	return enabled.Int64 == 1, nil
}

func integrityStatements(dialect Dialect) (relax, restore string) {
	if dialect == Postgres {
		return "SET session_replication_role = 'replica'", "SET session_replication_role = 'origin'"
	}
	return "PRAGMA foreign_keys = OFF", "PRAGMA foreign_keys = ON"
}
