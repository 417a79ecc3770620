package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
	"github.com/stockbooks/stockbooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, ownerID, id string) (Transaction, error)
	Update(ctx context.Context, tx Transaction) error
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, filter ListFilter) ([]Transaction, int, error)
	ListAll(ctx context.Context, ownerID string) ([]Transaction, error)
}

// SyncDispatcher hands a stored transaction to the inventory sync engine.
type SyncDispatcher interface {
	Dispatch(ctx context.Context, tx Transaction) error
}

// CacheBumper invalidates derived report caches for an owner.
type CacheBumper interface {
	Bump(ctx context.Context, ownerID string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates transaction operations.
type Service struct {
	repo     RepositoryPort
	sync     SyncDispatcher
	cache    CacheBumper
	audit    AuditPort
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service. sync, cache and audit are optional.
func NewService(repo RepositoryPort, sync SyncDispatcher, cache CacheBumper, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		sync:     sync,
		cache:    cache,
		audit:    audit,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a transaction, then dispatches inventory sync.
func (s *Service) Create(ctx context.Context, ownerID string, input Input) (Transaction, error) {
	if ownerID == "" {
		return Transaction{}, shared.ErrOwnerRequired
	}
	if err := s.check(input); err != nil {
		return Transaction{}, err
	}
	now := s.now()
	tx := fromInput(input)
	tx.ID = uuid.NewString()
	tx.OwnerID = ownerID
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if err := s.repo.Insert(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("transactions: insert: %w", err)
	}
	s.afterWrite(ctx, "transaction:create", tx)
	if s.sync != nil {
		if err := s.sync.Dispatch(ctx, tx); err != nil {
			s.logger.Warn("inventory sync dispatch failed",
				slog.String("transaction_id", tx.ID),
				slog.Any("error", err))
		}
	}
	return tx, nil
}

// Get loads a single transaction.
func (s *Service) Get(ctx context.Context, ownerID, id string) (Transaction, error) {
	if ownerID == "" {
		return Transaction{}, shared.ErrOwnerRequired
	}
	return s.repo.Get(ctx, ownerID, id)
}

// Update replaces the editable fields of a transaction. Stock is not
// re-synchronised; the original sync stays recorded against the id.
func (s *Service) Update(ctx context.Context, ownerID, id string, input Input) (Transaction, error) {
	if ownerID == "" {
		return Transaction{}, shared.ErrOwnerRequired
	}
	if err := s.check(input); err != nil {
		return Transaction{}, err
	}
	existing, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return Transaction{}, err
	}
	tx := fromInput(input)
	tx.ID = existing.ID
	tx.OwnerID = existing.OwnerID
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("transactions: update: %w", err)
	}
	s.afterWrite(ctx, "transaction:update", tx)
	return tx, nil
}

// Delete removes a transaction.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return shared.ErrOwnerRequired
	}
	existing, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("transactions: delete: %w", err)
	}
	s.afterWrite(ctx, "transaction:delete", existing)
	return nil
}

// List returns a page of transactions, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.OwnerID == "" {
		return Page{}, shared.ErrOwnerRequired
	}
	pg := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = pg.Page, pg.PerPage
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	pg = shared.NewPagination(filter.Page, filter.PerPage, total)
	if items == nil {
		items = []Transaction{}
	}
	return Page{Items: items, Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, Pages: pg.TotalPages}, nil
}

// ListAll returns every transaction of the owner in ascending date order.
func (s *Service) ListAll(ctx context.Context, ownerID string) ([]Transaction, error) {
	if ownerID == "" {
		return nil, shared.ErrOwnerRequired
	}
	return s.repo.ListAll(ctx, ownerID)
}

// Resync dispatches inventory sync again for a stored transaction.
func (s *Service) Resync(ctx context.Context, ownerID, id string) (Transaction, error) {
	tx, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Transaction{}, err
	}
	if s.sync == nil {
		return Transaction{}, errors.New("transactions: inventory sync not configured")
	}
	if err := s.sync.Dispatch(ctx, tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (s *Service) check(input Input) error {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("transactions: invalid %s: %w", strings.Join(fields, ","), httpx.ErrValidation)
		}
		return fmt.Errorf("transactions: %v: %w", err, httpx.ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if input.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if r := input.GSTRate; r != nil && (r.IsNegative() || r.GreaterThan(hundred)) {
		return ErrInvalidGSTRate
	}
	return nil
}

func (s *Service) afterWrite(ctx context.Context, action string, tx Transaction) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, tx.OwnerID); err != nil {
			s.logger.Warn("report cache bump failed", slog.String("owner_id", tx.OwnerID), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  tx.OwnerID,
			Action:   action,
			Entity:   "transaction",
			EntityID: tx.ID,
			Meta: map[string]any{
				"type":   string(tx.Type),
				"amount": tx.Amount.String(),
			},
		})
	}
}

func fromInput(input Input) Transaction {
	rate := DefaultGSTRate
	if input.GSTRate != nil {
		rate = *input.GSTRate
	}
	return Transaction{
		Date:          input.Date.UTC(),
		Type:          input.Type,
		SubType:       strings.TrimSpace(input.SubType),
		Category:      strings.TrimSpace(input.Category),
		Amount:        input.Amount,
		Description:   strings.TrimSpace(input.Description),
		PaymentMethod: strings.TrimSpace(input.PaymentMethod),
		VendorName:    strings.TrimSpace(input.VendorName),
		BuyerName:     strings.TrimSpace(input.BuyerName),
		GSTApplicable: input.GSTApplicable,
		GSTType:       strings.ToUpper(strings.TrimSpace(input.GSTType)),
		GSTRate:       rate,
		ProductName:   strings.TrimSpace(input.ProductName),
		SKU:           strings.TrimSpace(input.SKU),
		Quantity:      input.Quantity,
		Price:         input.Price,
	}
}
