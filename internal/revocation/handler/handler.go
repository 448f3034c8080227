package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rlregistry/internal/revocation/models"
	dErrors "rlregistry/pkg/domain-errors"
	"rlregistry/pkg/platform/httputil"
	request "rlregistry/pkg/platform/middleware/request"
)

// maxBodyBytes fits a replacement body (8192 hex chars) and a full batch of indices.
const maxBodyBytes = 1 << 20

// Service defines the registry operations the handler exposes.
type Service interface {
	Register(ctx context.Context, id string) error
	SetBits(ctx context.Context, id string, set, clear []int) error
	Revoke(ctx context.Context, id string, index int) error
	Reset(ctx context.Context, id string, index int) error
	IsSet(ctx context.Context, id string, index int) (bool, error)
	GetEncodedList(ctx context.Context, id string) (string, error)
	GetList(ctx context.Context, id string) (*models.List, error)
	ReplaceList(ctx context.Context, id, encoded string) error
}

// Handler serves the revocation list HTTP API.
type Handler struct {
	lists  Service
	logger *slog.Logger
	// guard wraps mutating routes; nil leaves them open.
	guard func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithMutationGuard puts mutating routes behind mw (the bearer token check).
func WithMutationGuard(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.guard = mw
	}
}

func New(lists Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{lists: lists, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the revocation list routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/lists", func(r chi.Router) {
		r.Get("/{id}", h.handleGetList)
		r.Get("/{id}/encoded", h.handleGetEncoded)
		r.Get("/{id}/bits/{index}", h.handleGetBit)

		r.Group(func(r chi.Router) {
			if h.guard != nil {
				r.Use(h.guard)
			}
			r.Post("/", h.handleRegister)
			r.Put("/{id}", h.handleReplace)
			r.Post("/{id}/bits", h.handleUpdateBits)
			r.Post("/{id}/bits/{index}/revoke", h.handleRevoke)
			r.Post("/{id}/bits/{index}/reset", h.handleReset)
		})
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RegisterListRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.lists.Register(ctx, req.ID); err != nil {
		h.writeServiceError(ctx, w, "register", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.RegisterListResponse{
		ID:       req.ID,
		Capacity: models.Capacity,
	})
}

func (h *Handler) handleGetList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.lists.GetList(ctx, listID(r))
	if err != nil {
		h.writeServiceError(ctx, w, "get_list", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewListResponse(list))
}

func (h *Handler) handleGetEncoded(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	encoded, err := h.lists.GetEncodedList(ctx, listID(r))
	if err != nil {
		h.writeServiceError(ctx, w, "get_encoded_list", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, encoded)
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.ReplaceListRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.lists.ReplaceList(ctx, listID(r), req.EncodedList); err != nil {
		h.writeServiceError(ctx, w, "replace_list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateBits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.UpdateBitsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.lists.SetBits(ctx, listID(r), req.Set, req.Clear); err != nil {
		h.writeServiceError(ctx, w, "set_bits", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetBit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, err := bitIndex(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id := listID(r)
	revoked, err := h.lists.IsSet(ctx, id, index)
	if err != nil {
		h.writeServiceError(ctx, w, "is_set", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.BitResponse{ID: id, Index: index, Revoked: revoked})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.handleSingle(w, r, "revoke", h.lists.Revoke)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.handleSingle(w, r, "reset", h.lists.Reset)
}

func (h *Handler) handleSingle(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string, int) error) {
	ctx := r.Context()
	index, err := bitIndex(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := fn(ctx, listID(r), index); err != nil {
		h.writeServiceError(ctx, w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeServiceError logs unexpected failures; client errors are returned as-is.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		h.logger.ErrorContext(ctx, "revocation list request failed",
			"operation", op,
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

// listID returns the path id. chi matches on r.URL.RawPath when it is set (the id
// carried an escaped '/'), otherwise on the already-decoded r.URL.Path. Only the
// first case needs decoding; decoding twice would turn "a%41" into "aA".
func listID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return raw
	}
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func bitIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "index must be an integer")
	}
	return index, nil
}
