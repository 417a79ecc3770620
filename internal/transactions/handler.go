package transactions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
	"github.com/stockbooks/stockbooks/internal/shared"
)

// Handler wires HTTP endpoints for the transactions module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs transactions handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/sync", h.resync)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	tx, err := h.service.Create(r.Context(), shared.OwnerFromContext(r.Context()), input)
	if err != nil {
		h.fail(w, "create transaction", err)
		return
	}
	h.logger.Info("transaction created",
		slog.String("transaction_id", tx.ID),
		slog.String("type", string(tx.Type)))
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Get(r.Context(), shared.OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	tx, err := h.service.Update(r.Context(), shared.OwnerFromContext(r.Context()), chi.URLParam(r, "id"), input)
	if err != nil {
		h.fail(w, "update transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), shared.OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Resync(r.Context(), shared.OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "resync transaction", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"id": tx.ID, "status": "dispatched"})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{OwnerID: shared.OwnerFromContext(r.Context()), Type: Type(q.Get("type"))}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return ListFilter{}, fmt.Errorf("page: %w", httpx.ErrValidation)
		}
		filter.Page = page
	}
	if v := q.Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil {
			return ListFilter{}, fmt.Errorf("per_page: %w", httpx.ErrValidation)
		}
		filter.PerPage = perPage
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return ListFilter{}, fmt.Errorf("from: %w", httpx.ErrValidation)
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return ListFilter{}, fmt.Errorf("to: %w", httpx.ErrValidation)
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return filter, nil
}
