package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

// actionLockID serialises engine actions across every process sharing the database.
const actionLockID = 0x706f7473

// Store implements the raw key-value backend on a single PostgreSQL table.
type Store struct {
	db *sqlx.DB
}

var _ storage.Backend = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// NewState wraps the backend with the typed entity API.
func NewState(db *sql.DB) storage.Store {
	return storage.New(New(db))
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.KVTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, actionLockID); err != nil {
		return fmt.Errorf("acquire action lock: %w", err)
	}
	if err = fn(&kvTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, fn func(tx storage.KVTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(storage.NewOverlay(&kvTx{tx: tx}))
}

type row struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

type kvTx struct {
	tx *sqlx.Tx
}

func (t *kvTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := t.tx.GetContext(ctx, &value, `SELECT value FROM pots_state WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *kvTx) Scan(ctx context.Context, prefix string) ([]storage.KVPair, error) {
	var rows []row
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT key, value FROM pots_state
		WHERE key LIKE $1 ESCAPE '\'
		ORDER BY key COLLATE "C"
	`, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]storage.KVPair, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.KVPair{Key: r.Key, Value: r.Value})
	}
	return out, nil
}

func (t *kvTx) Put(ctx context.Context, key string, value []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pots_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, string(value))
	return err
}

func (t *kvTx) Delete(ctx context.Context, key string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM pots_state WHERE key = $1`, key)
	return err
}

func (t *kvTx) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM pots_state WHERE key LIKE $1 ESCAPE '\'`, likePrefix(prefix))
	return err
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
