package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record is one row of the kv table.
type Record struct {
	Key       string
	Value     []byte
	Version   int64
	Writer    string
	UpdatedAt int64
}

// Get retrieves the record for key. found is false when the key was never written.
func Get(ctx context.Context, q Querier, key string) (rec Record, found bool, err error) {
	var writer sql.NullString
	row := q.QueryRowContext(ctx,
		`SELECT key, value, version, writer, updated_at FROM kv WHERE key = ?`, key)
	var value string
	err = row.Scan(&rec.Key, &value, &rec.Version, &writer, &rec.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec.Value = []byte(value)
	rec.Writer = writer.String
	return rec, true, nil
}

// Put writes value under key unconditionally and returns the new version.
func Put(ctx context.Context, q Querier, key string, value []byte, writer string) (int64, error) {
	now := time.Now().UnixMilli()
	row := q.QueryRowContext(ctx, `
		INSERT INTO kv (key, value, version, writer, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = kv.version + 1,
			writer = excluded.writer,
			updated_at = excluded.updated_at
		RETURNING version
	`, key, string(value), writer, now)

	var version int64
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// CompareAndPut writes value only if the stored version equals expected.
// expected == 0 means "key must not exist yet". ok is false when the
// precondition failed; nothing is written in that case.
func CompareAndPut(ctx context.Context, q Querier, key string, expected int64, value []byte, writer string) (version int64, ok bool, err error) {
	now := time.Now().UnixMilli()

	var result sql.Result
	if expected == 0 {
		result, err = q.ExecContext(ctx, `
			INSERT INTO kv (key, value, version, writer, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, string(value), writer, now)
	} else {
		result, err = q.ExecContext(ctx, `
			UPDATE kv SET value = ?, version = version + 1, writer = ?, updated_at = ?
			WHERE key = ? AND version = ?
		`, string(value), writer, now, key, expected)
	}
	if err != nil {
		return 0, false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return expected + 1, true, nil
}

// Delete removes key. Removing a missing key is not an error.
func Delete(ctx context.Context, q Querier, key string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Versions returns the current version and last writer of every key.
// Used by change detection to find keys written by another process.
func Versions(ctx context.Context, q Querier) (map[string]Record, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, version, writer, updated_at FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var (
			rec    Record
			writer sql.NullString
		)
		if err := rows.Scan(&rec.Key, &rec.Version, &writer, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Writer = writer.String
		out[rec.Key] = rec
	}
	return out, rows.Err()
}
