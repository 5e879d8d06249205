package db

import (
	"context"
	"database/sql"
	"fmt"
)

// KV is a string key-value table. Multi-key writes run in one transaction.
type KV struct {
	DB *sql.DB
}

func NewKV(db *sql.DB) *KV {
	return &KV{DB: db}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := k.DB.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (k *KV) PutAll(ctx context.Context, keys, values []string) error {
	if len(keys) != len(values) {
		return fmt.Errorf("put: %d keys but %d values", len(keys), len(values))
	}
	return k.inTx(ctx, func(tx *sql.Tx) error {
		for i, key := range keys {
			if _, err := tx.ExecContext(ctx, "INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, values[i]); err != nil {
				return fmt.Errorf("put %s: %w", key, err)
			}
		}
		return nil
	})
}

func (k *KV) DeleteAll(ctx context.Context, keys []string) error {
	return k.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

func (k *KV) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := k.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
