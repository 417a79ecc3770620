package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
	"github.com/stockbooks/stockbooks/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes the reports over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}", h.show)
	r.Get("/{kind}/export", h.export)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	filename := fmt.Sprintf("%s-%s.xlsx", chi.URLParam(r, "kind"), time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := WriteXLSX(w, report.Table()); err != nil {
		h.logger.Error("report export failed", slog.Any("error", err))
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Report, bool) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	filter, err := ParseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	report, err := h.service.Report(r.Context(), shared.OwnerFromContext(r.Context()), kind, filter)
	if err != nil {
		h.logger.Error("report failed", slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return nil, false
	}
	return report, true
}

// ParseFilter reads from, to, account_type, account, min_amount and
// max_amount query parameters.
func ParseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{AccountType: q.Get("account_type"), Account: q.Get("account")}
	var err error
	if filter.From, err = parseDay(q.Get("from")); err != nil {
		return Filter{}, fmt.Errorf("from: %w", httpx.ErrValidation)
	}
	if filter.To, err = parseDay(q.Get("to")); err != nil {
		return Filter{}, fmt.Errorf("to: %w", httpx.ErrValidation)
	}
	if filter.MinAmount, err = parseAmount(q.Get("min_amount")); err != nil {
		return Filter{}, fmt.Errorf("min_amount: %w", httpx.ErrValidation)
	}
	if filter.MaxAmount, err = parseAmount(q.Get("max_amount")); err != nil {
		return Filter{}, fmt.Errorf("max_amount: %w", httpx.ErrValidation)
	}
	return filter, nil
}

func parseDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, v)
}

func parseAmount(v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
