// Package handler is the thin HTTP layer over the sync service. It delegates
// to the service without embedding business logic so transport concerns remain
// isolated.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clicr/internal/ledger/models"
	"clicr/internal/sync"
	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
	"clicr/pkg/platform/httputil"
	"clicr/pkg/requestcontext"
)

// SyncService is the engine surface the transport exposes.
type SyncService interface {
	Read(ctx context.Context, userID id.UserID) (*models.Dataset, error)
	Command(ctx context.Context, userID id.UserID, cmd sync.Command) (*sync.Response, error)
}

// Handler serves the two engine operations.
type Handler struct {
	service SyncService
	logger  *slog.Logger
}

// New constructs a Handler.
func New(service SyncService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the sync routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/sync", h.handleRead)
	r.Post("/sync/command", h.handleCommand)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing principal"))
		return
	}

	ds, err := h.service.Read(r.Context(), userID)
	if err != nil {
		h.logError(r.Context(), "read failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ds)
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing principal"))
		return
	}

	var cmd sync.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	resp, err := h.service.Command(r.Context(), userID, cmd)
	if err != nil {
		h.logError(r.Context(), "command failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
