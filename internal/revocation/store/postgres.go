package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"rlregistry/internal/revocation/models"
	"rlregistry/pkg/platform/sentinel"
	"rlregistry/pkg/platform/tx"
	"rlregistry/pkg/requestcontext"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore persists revocation lists in PostgreSQL.
//
// Mutations lock the list row with SELECT ... FOR UPDATE, so batches on one list are
// serialized across every instance sharing the database while other rows stay free.
// Every mutation also appends to revocation_list_updates in the same transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed list store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure revocation schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, id models.ListID) error {
	now := requestcontext.Now(ctx)
	return tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		res, err := t.ExecContext(ctx, `
			INSERT INTO revocation_lists (id, bitmap, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (id) DO NOTHING
		`, string(id), models.NewBitmap().Bytes(), now)
		if err != nil {
			return fmt.Errorf("create revocation list: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("create revocation list: %w", err)
		}
		if n == 0 {
			return sentinel.ErrAlreadyUsed
		}
		return nil
	})
}

func (s *PostgresStore) Apply(ctx context.Context, id models.ListID, batch models.Batch) error {
	return s.mutate(ctx, id, func(bm *models.Bitmap) {
		bm.Apply(batch)
	}, toInt64s(batch.SetIndices()), toInt64s(batch.ClearIndices()), false)
}

func (s *PostgresStore) Replace(ctx context.Context, id models.ListID, bitmap *models.Bitmap) error {
	next := bitmap.Clone()
	return s.mutate(ctx, id, func(bm *models.Bitmap) {
		*bm = *next
	}, nil, nil, true)
}

func (s *PostgresStore) Load(ctx context.Context, id models.ListID) (*models.Bitmap, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT bitmap FROM revocation_lists WHERE id = $1`, string(id)).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load revocation list: %w", err)
	}
	bm, err := models.BitmapFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode stored bitmap: %w", err)
	}
	return bm, nil
}

// BitAt uses get_bit, which numbers bytea bits from the low bit of the first byte,
// the same layout models.Bitmap uses.
func (s *PostgresStore) BitAt(ctx context.Context, id models.ListID, index uint32) (bool, error) {
	var bit int
	err := s.db.QueryRowContext(ctx,
		`SELECT get_bit(bitmap, $2) FROM revocation_lists WHERE id = $1`, string(id), int64(index)).Scan(&bit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("read revocation bit: %w", err)
	}
	return bit == 1, nil
}

func (s *PostgresStore) IDs(ctx context.Context) ([]models.ListID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM revocation_lists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list revocation list ids: %w", err)
	}
	defer rows.Close()

	var ids []models.ListID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan revocation list id: %w", err)
		}
		ids = append(ids, models.ListID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revocation list ids: %w", err)
	}
	return ids, nil
}

// UpdateCount returns how many mutations were recorded for a list.
func (s *PostgresStore) UpdateCount(ctx context.Context, id models.ListID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM revocation_list_updates WHERE list_id = $1`, string(id)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count revocation list updates: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) mutate(ctx context.Context, id models.ListID, fn func(*models.Bitmap), setIdx, clearIdx []int64, replaced bool) error {
	now := requestcontext.Now(ctx)
	return tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		var raw []byte
		err := t.QueryRowContext(ctx,
			`SELECT bitmap FROM revocation_lists WHERE id = $1 FOR UPDATE`, string(id)).Scan(&raw)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock revocation list: %w", err)
		}
		bm, err := models.BitmapFromBytes(raw)
		if err != nil {
			return fmt.Errorf("decode stored bitmap: %w", err)
		}
		fn(bm)

		if _, err := t.ExecContext(ctx,
			`UPDATE revocation_lists SET bitmap = $2, updated_at = $3 WHERE id = $1`,
			string(id), bm.Bytes(), now); err != nil {
			return fmt.Errorf("update revocation list: %w", err)
		}
		if setIdx == nil {
			setIdx = []int64{}
		}
		if clearIdx == nil {
			clearIdx = []int64{}
		}
		if _, err := t.ExecContext(ctx, `
			INSERT INTO revocation_list_updates (list_id, set_indices, clear_indices, replaced, applied_at)
			VALUES ($1, $2::text::integer[], $3::text::integer[], $4, $5)
		`, string(id), pq.Array(setIdx), pq.Array(clearIdx), replaced, now); err != nil {
			return fmt.Errorf("record revocation list update: %w", err)
		}
		return nil
	})
}

func toInt64s(in []uint32) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
