// Package snapshot persists the in-memory registry to object storage so a restart
// does not lose every list.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rlregistry/internal/platform/metrics"
	"rlregistry/internal/revocation/models"
	"rlregistry/pkg/platform/sentinel"
)

// ErrNoSnapshot is returned by an ObjectStore when no snapshot has been written yet.
var ErrNoSnapshot = errors.New("snapshot: object not found")

// ListSource is the registry being snapshotted.
type ListSource interface {
	IDs(ctx context.Context) ([]models.ListID, error)
	Load(ctx context.Context, id models.ListID) (*models.Bitmap, error)
	Create(ctx context.Context, id models.ListID) error
	Replace(ctx context.Context, id models.ListID, bitmap *models.Bitmap) error
}

// ObjectStore holds snapshot objects.
type ObjectStore interface {
	Put(ctx context.Context, name string, body io.Reader, size int64) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

type Snapshotter struct {
	lists   ListSource
	objects ObjectStore
	object  string
	logger  *slog.Logger
	metrics *metrics.Metrics
	// loaders bounds concurrent list loads during export.
	loaders int
}

type Option func(*Snapshotter)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Snapshotter) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Snapshotter) {
		s.metrics = m
	}
}

func New(lists ListSource, objects ObjectStore, object string, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		lists:   lists,
		objects: objects,
		object:  object,
		logger:  slog.Default(),
		loaders: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export writes every list to the snapshot object and returns how many were written.
func (s *Snapshotter) Export(ctx context.Context) (int, error) {
	ids, err := s.lists.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list ids: %w", err)
	}

	records := make([]Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.loaders)
	for i, id := range ids {
		g.Go(func() error {
			bitmap, err := s.lists.Load(gctx, id)
			if err != nil {
				return fmt.Errorf("load %q: %w", id, err)
			}
			records[i] = Record{ID: id, Bitmap: bitmap}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return 0, err
	}
	if err := s.objects.Put(ctx, s.object, &buf, int64(buf.Len())); err != nil {
		return 0, fmt.Errorf("upload snapshot: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SetSnapshotLists(len(records))
	}
	return len(records), nil
}

// Restore loads the snapshot object into the registry. A missing object is a fresh
// start and restores nothing. Lists that already exist are overwritten.
func (s *Snapshotter) Restore(ctx context.Context) (int, error) {
	body, err := s.objects.Get(ctx, s.object)
	if errors.Is(err, ErrNoSnapshot) {
		s.logger.InfoContext(ctx, "no snapshot found, starting empty", "object", s.object)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("download snapshot: %w", err)
	}
	defer body.Close()

	records, err := Decode(body)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := s.lists.Create(ctx, rec.ID); err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return 0, fmt.Errorf("restore %q: %w", rec.ID, err)
		}
		if err := s.lists.Replace(ctx, rec.ID, rec.Bitmap); err != nil {
			return 0, fmt.Errorf("restore %q: %w", rec.ID, err)
		}
	}
	return len(records), nil
}

// Run exports every interval until ctx is cancelled, then exports once more within
// finalTimeout so shutdown does not lose the last changes.
func (s *Snapshotter) Run(ctx context.Context, interval, finalTimeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalTimeout)
			defer cancel()
			n, err := s.Export(fctx)
			if err != nil {
				return fmt.Errorf("final snapshot: %w", err)
			}
			s.logger.Info("final snapshot written", "lists", n, "object", s.object)
			return nil
		case <-ticker.C:
			n, err := s.Export(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.WarnContext(ctx, "snapshot export failed", "error", err)
				}
				continue
			}
			s.logger.DebugContext(ctx, "snapshot written", "lists", n, "object", s.object)
		}
	}
}
