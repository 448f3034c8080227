// Package service implements the revocation list registry operations on top of a
// ListStore. It owns validation, error translation, audit emission and metrics;
// stores only own storage and locking.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rlregistry/internal/platform/metrics"
	"rlregistry/internal/revocation/models"
	"rlregistry/pkg/attrs"
	dErrors "rlregistry/pkg/domain-errors"
	audit "rlregistry/pkg/platform/audit"
	"rlregistry/pkg/platform/sentinel"
	"rlregistry/pkg/requestcontext"
)

// ListStore persists revocation lists. Implementations must apply each batch or
// replacement atomically with respect to concurrent readers of the same list.
type ListStore interface {
	Create(ctx context.Context, id models.ListID) error
	Apply(ctx context.Context, id models.ListID, batch models.Batch) error
	Replace(ctx context.Context, id models.ListID, bitmap *models.Bitmap) error
	Load(ctx context.Context, id models.ListID) (*models.Bitmap, error)
	BitAt(ctx context.Context, id models.ListID, index uint32) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const tracerName = "rlregistry/internal/revocation/service"

// Service is the revocation list registry.
type Service struct {
	lists          ListStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(lists ListStore, opts ...Option) *Service {
	s := &Service{lists: lists}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Register creates an all-zero list under id.
func (s *Service) Register(ctx context.Context, rawID string) (err error) {
	ctx, end := s.begin(ctx, "register", rawID)
	defer func() { end(err) }()

	id, err := models.ParseListID(rawID)
	if err != nil {
		return err
	}
	if err := s.lists.Create(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "revocation list already exists")
		}
		return translateStoreError(err, "failed to register revocation list")
	}

	s.logAudit(ctx, string(audit.EventListRegistered), "list_id", id.String())
	if s.metrics != nil {
		s.metrics.IncrementListsRegistered()
	}
	return nil
}

// SetBits sets every index in set and clears every index in clear as one atomic
// batch. An index present in both ends up cleared. The whole batch is validated
// before the list is touched.
func (s *Service) SetBits(ctx context.Context, rawID string, set, clear []int) (err error) {
	ctx, end := s.begin(ctx, "set_bits", rawID)
	defer func() { end(err) }()

	id, err := s.parseExistingID(rawID)
	if err != nil {
		return err
	}
	batch, err := models.NewBatch(set, clear)
	if err != nil {
		return err
	}
	if batch.IsEmpty() {
		// Still report unknown lists for an empty batch.
		if _, err := s.load(ctx, id); err != nil {
			return err
		}
		return nil
	}
	if err := s.lists.Apply(ctx, id, batch); err != nil {
		return translateStoreError(err, "failed to update revocation list")
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("rl.set_count", batch.SetCount()),
		attribute.Int("rl.clear_count", batch.ClearCount()),
	)
	s.logAudit(ctx, string(audit.EventListBitsUpdated),
		"list_id", id.String(),
		"set_count", batch.SetCount(),
		"clear_count", batch.ClearCount(),
	)
	if s.metrics != nil {
		s.metrics.ObserveBatch(batch.SetCount(), batch.ClearCount())
	}
	return nil
}

// Revoke sets a single index.
func (s *Service) Revoke(ctx context.Context, id string, index int) error {
	return s.SetBits(ctx, id, []int{index}, nil)
}

// Reset clears a single index.
func (s *Service) Reset(ctx context.Context, id string, index int) error {
	return s.SetBits(ctx, id, nil, []int{index})
}

// IsSet reports the bit at index.
func (s *Service) IsSet(ctx context.Context, rawID string, index int) (_ bool, err error) {
	ctx, end := s.begin(ctx, "is_set", rawID)
	defer func() { end(err) }()

	id, err := s.parseExistingID(rawID)
	if err != nil {
		return false, err
	}
	if err := models.CheckIndex(index); err != nil {
		return false, err
	}
	set, err := s.lists.BitAt(ctx, id, uint32(index))
	if err != nil {
		return false, translateStoreError(err, "failed to read revocation list")
	}
	return set, nil
}

// GetEncodedList returns the list as 8192 lowercase hex characters.
func (s *Service) GetEncodedList(ctx context.Context, rawID string) (_ string, err error) {
	ctx, end := s.begin(ctx, "get_encoded_list", rawID)
	defer func() { end(err) }()

	id, err := s.parseExistingID(rawID)
	if err != nil {
		return "", err
	}
	bitmap, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	return bitmap.Encode(), nil
}

// GetList returns a snapshot view of the list.
func (s *Service) GetList(ctx context.Context, rawID string) (_ *models.List, err error) {
	ctx, end := s.begin(ctx, "get_list", rawID)
	defer func() { end(err) }()

	id, err := s.parseExistingID(rawID)
	if err != nil {
		return nil, err
	}
	bitmap, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.List{ID: id, Bitmap: bitmap}, nil
}

// RevokedCount returns the number of set bits.
func (s *Service) RevokedCount(ctx context.Context, id string) (int, error) {
	list, err := s.GetList(ctx, id)
	if err != nil {
		return 0, err
	}
	return list.Bitmap.Count(), nil
}

// ReplaceList overwrites the whole bitmap from its hex encoding. Upper-case hex is
// accepted; anything that does not decode to exactly 4096 bytes is rejected and
// the list is left unchanged.
func (s *Service) ReplaceList(ctx context.Context, rawID, encoded string) (err error) {
	ctx, end := s.begin(ctx, "replace_list", rawID)
	defer func() { end(err) }()

	id, err := s.parseExistingID(rawID)
	if err != nil {
		return err
	}
	bitmap, err := models.DecodeBitmap(encoded)
	if err != nil {
		return err
	}
	if err := s.lists.Replace(ctx, id, bitmap); err != nil {
		return translateStoreError(err, "failed to replace revocation list")
	}

	s.logAudit(ctx, string(audit.EventListReplaced),
		"list_id", id.String(),
		"set_count", bitmap.Count(),
	)
	if s.metrics != nil {
		s.metrics.IncrementListsReplaced()
	}
	return nil
}

// parseExistingID validates an id used to address a list. Blank ids can never
// have been registered, so they are reported as not found.
func (s *Service) parseExistingID(rawID string) (models.ListID, error) {
	id, err := models.ParseListID(rawID)
	if err != nil {
		return "", dErrors.New(dErrors.CodeNotFound, "revocation list not found")
	}
	return id, nil
}

func (s *Service) load(ctx context.Context, id models.ListID) (*models.Bitmap, error) {
	bitmap, err := s.lists.Load(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "failed to load revocation list")
	}
	return bitmap, nil
}

// translateStoreError maps store sentinels to domain errors.
func translateStoreError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "revocation list not found")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "revocation list is busy, retry later")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// begin opens a span and returns a func that records the outcome on the span and
// in metrics.
func (s *Service) begin(ctx context.Context, operation, id string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "revocation."+operation,
		trace.WithAttributes(attribute.String("rl.list_id", id)))
	return ctx, func(err error) {
		if err != nil {
			code := dErrors.CodeOf(err)
			span.SetAttributes(attribute.String("error.code", string(code)))
			if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
				span.RecordError(err)
				span.SetStatus(codes.Error, string(code))
				s.logError(ctx, operation, id, err)
			}
			if s.metrics != nil {
				s.metrics.ObserveError(operation, string(code))
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveDuration(operation, start)
		}
		span.End()
	}
}

func (s *Service) logError(ctx context.Context, operation, id string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, "revocation list operation failed",
		"operation", operation,
		"list_id", id,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// logAudit writes the audit line and forwards the event to the publisher. Publish
// failures are logged and never fail the operation that already committed.
func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Action:     event,
		ListID:     attrs.ExtractString(attributes, "list_id"),
		SetCount:   attrs.ExtractInt(attributes, "set_count"),
		ClearCount: attrs.ExtractInt(attributes, "clear_count"),
		RequestID:  requestID,
		ActorID:    requestcontext.Subject(ctx),
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event",
			"event", event,
			"error", err,
			"request_id", requestID,
		)
	}
}
