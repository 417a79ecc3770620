package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/internal/transactions"
)

// Kind names a report.
type Kind string

const (
	KindLedger       Kind = "ledger"
	KindTrialBalance Kind = "trial-balance"
	KindBalanceSheet Kind = "balance-sheet"
	KindProfitLoss   Kind = "profit-loss"
	KindCashFlow     Kind = "cash-flow"
	KindGST          Kind = "gst"
)

const reportLoadTimeout = 30 * time.Second

// Kinds lists every report kind.
var Kinds = []Kind{KindLedger, KindTrialBalance, KindBalanceSheet, KindProfitLoss, KindCashFlow, KindGST}

// ErrUnknownKind is returned for report names outside Kinds.
var ErrUnknownKind = fmt.Errorf("reports: unknown report: %w", httpx.ErrNotFound)

// ParseKind validates a report name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownKind)
}

// TransactionSource loads an owner's transactions in ascending date order.
type TransactionSource interface {
	ListAll(ctx context.Context, ownerID string) ([]transactions.Transaction, error)
}

// Report is any rendered report.
type Report interface {
	Table() Table
}

// Service loads transactions and renders cached reports.
type Service struct {
	source TransactionSource
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs the report service. cache may be nil.
func NewService(source TransactionSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger}
}

// Bump invalidates the owner's cached reports.
func (s *Service) Bump(ctx context.Context, ownerID string) error {
	return s.cache.Bump(ctx, ownerID)
}

// Report renders the report of the given kind.
func (s *Service) Report(ctx context.Context, ownerID string, kind Kind, filter Filter) (Report, error) {
	switch kind {
	case KindLedger:
		return s.Ledger(ctx, ownerID, filter)
	case KindTrialBalance:
		return s.TrialBalance(ctx, ownerID, filter)
	case KindBalanceSheet:
		return s.BalanceSheet(ctx, ownerID, filter)
	case KindProfitLoss:
		return s.ProfitAndLoss(ctx, ownerID, filter)
	case KindCashFlow:
		return s.CashFlow(ctx, ownerID, filter)
	case KindGST:
		return s.GST(ctx, ownerID, filter)
	}
	return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
}

// Ledger renders per-account postings with running balances.
func (s *Service) Ledger(ctx context.Context, ownerID string, filter Filter) (Ledger, error) {
	var out Ledger
	err := s.render(ctx, ownerID, KindLedger, filter, &out, func(txs []transactions.Transaction) interface{} {
		return BuildLedger(filter.Apply(BuildEntries(txs)))
	})
	return out, err
}

// TrialBalance renders the trial balance.
func (s *Service) TrialBalance(ctx context.Context, ownerID string, filter Filter) (TrialBalance, error) {
	var out TrialBalance
	err := s.render(ctx, ownerID, KindTrialBalance, filter, &out, func(txs []transactions.Transaction) interface{} {
		return BuildTrialBalance(filter.Apply(BuildEntries(txs)))
	})
	return out, err
}

// BalanceSheet renders the position as of filter.To; the lower date bound
// is ignored.
func (s *Service) BalanceSheet(ctx context.Context, ownerID string, filter Filter) (BalanceSheet, error) {
	filter = filter.AsOf()
	var out BalanceSheet
	err := s.render(ctx, ownerID, KindBalanceSheet, filter, &out, func(txs []transactions.Transaction) interface{} {
		return BuildBalanceSheet(filter.Apply(BuildEntries(txs)))
	})
	return out, err
}

// ProfitAndLoss renders revenue against expenses.
func (s *Service) ProfitAndLoss(ctx context.Context, ownerID string, filter Filter) (ProfitAndLoss, error) {
	var out ProfitAndLoss
	err := s.render(ctx, ownerID, KindProfitLoss, filter, &out, func(txs []transactions.Transaction) interface{} {
		return BuildProfitAndLoss(filter.Apply(BuildEntries(txs)))
	})
	return out, err
}

// CashFlow renders the cash flow statement. Account criteria are ignored
// because both sides of every pair are needed.
func (s *Service) CashFlow(ctx context.Context, ownerID string, filter Filter) (CashFlow, error) {
	var out CashFlow
	err := s.render(ctx, ownerID, KindCashFlow, filter, &out, func(txs []transactions.Transaction) interface{} {
		return BuildCashFlow(BuildEntries(filter.Transactions(txs)))
	})
	return out, err
}

// GST renders the GST summary for transactions in range.
func (s *Service) GST(ctx context.Context, ownerID string, filter Filter) (GSTSummary, error) {
	var out GSTSummary
	err := s.render(ctx, ownerID, KindGST, filter, &out, func(txs []transactions.Transaction) interface{} {
		return BuildGSTSummary(filter.Transactions(txs))
	})
	return out, err
}

// render serves dest from cache, coalescing concurrent identical requests.
// Store failures are returned, never rendered as an empty report.
func (s *Service) render(ctx context.Context, ownerID string, kind Kind, filter Filter, dest interface{}, build func([]transactions.Transaction) interface{}) error {
	if ownerID == "" {
		return shared.ErrOwnerRequired
	}
	key, err := s.cache.BuildKey(ctx, ownerID, string(kind), filter.Key())
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.String("owner_id", ownerID), slog.Any("error", err))
		key = strings.Join([]string{"reports", ownerID, string(kind), filter.Key()}, ":")
	}
	return s.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (interface{}, error) {
		// The shared load must outlive whichever caller started it.
		ch := s.group.DoChan(key, func() (interface{}, error) {
			loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportLoadTimeout)
			defer cancel()
			txs, err := s.source.ListAll(loadCtx, ownerID)
			if err != nil {
				return nil, fmt.Errorf("reports: load transactions: %w", err)
			}
			return build(txs), nil
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			return res.Val, res.Err
		}
	})
}
