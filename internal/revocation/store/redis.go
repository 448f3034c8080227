package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"rlregistry/internal/revocation/models"
	"rlregistry/pkg/platform/sentinel"
)

const (
	// Redis key prefix for revocation list bitmaps
	listKeyPrefix = "rl:list:"

	defaultMaxTxRetries = 16
)

// RedisStore keeps each list as one 4096-byte string value.
//
// Redis SETBIT numbers bits from the high end of each byte, which does not match the
// list layout, so mutations rewrite the whole value inside a WATCH/MULTI optimistic
// transaction and retry when another writer got there first.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
}

// RedisStoreOption configures a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// WithMaxTxRetries bounds optimistic transaction retries per mutation.
func WithMaxTxRetries(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewRedis constructs a Redis-backed list store.
func NewRedis(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		maxRetries: defaultMaxTxRetries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Create(ctx context.Context, id models.ListID) error {
	ok, err := s.client.SetNX(ctx, listKey(id), models.NewBitmap().Bytes(), 0).Result()
	if err != nil {
		return fmt.Errorf("create revocation list: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) Apply(ctx context.Context, id models.ListID, batch models.Batch) error {
	return s.update(ctx, id, func(bm *models.Bitmap) {
		bm.Apply(batch)
	})
}

func (s *RedisStore) Replace(ctx context.Context, id models.ListID, bitmap *models.Bitmap) error {
	next := bitmap.Clone()
	return s.update(ctx, id, func(bm *models.Bitmap) {
		*bm = *next
	})
}

func (s *RedisStore) Load(ctx context.Context, id models.ListID) (*models.Bitmap, error) {
	raw, err := s.client.Get(ctx, listKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load revocation list: %w", err)
	}
	bm, err := models.BitmapFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode stored bitmap: %w", err)
	}
	return bm, nil
}

// BitAt fetches only the byte holding index. GETRANGE on a missing key returns an
// empty string, which is how absence is detected.
func (s *RedisStore) BitAt(ctx context.Context, id models.ListID, index uint32) (bool, error) {
	pos := int64(index / 8)
	raw, err := s.client.GetRange(ctx, listKey(id), pos, pos).Bytes()
	if err != nil {
		return false, fmt.Errorf("read revocation bit: %w", err)
	}
	if len(raw) == 0 {
		return false, sentinel.ErrNotFound
	}
	mask := byte(1) << (index % 8)
	return raw[0]&mask != 0, nil
}

func (s *RedisStore) IDs(ctx context.Context) ([]models.ListID, error) {
	var ids []models.ListID
	iter := s.client.Scan(ctx, 0, listKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, models.ListID(strings.TrimPrefix(iter.Val(), listKeyPrefix)))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan revocation lists: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) update(ctx context.Context, id models.ListID, fn func(*models.Bitmap)) error {
	key := listKey(id)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		bm, err := models.BitmapFromBytes(raw)
		if err != nil {
			return fmt.Errorf("decode stored bitmap: %w", err)
		}
		fn(bm)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, bm.Bytes(), 0)
			return nil
		})
		return err
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("update revocation list: %w", err)
		}
		return err
	}
	return fmt.Errorf("update revocation list %q: %w", id, sentinel.ErrConflict)
}

func listKey(id models.ListID) string {
	return listKeyPrefix + string(id)
}
