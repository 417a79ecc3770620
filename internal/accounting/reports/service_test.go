package reports

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/internal/transactions"
)

type stubSource struct {
	mu    sync.Mutex
	txs   map[string][]transactions.Transaction
	err   error
	calls int
}

func (s *stubSource) ListAll(_ context.Context, ownerID string) ([]transactions.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]transactions.Transaction(nil), s.txs[ownerID]...), nil
}

func (s *stubSource) add(ownerID string, tx transactions.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[ownerID] = append(s.txs[ownerID], tx)
}

// blockingSource holds ListAll until release is closed.
type blockingSource struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	txs     []transactions.Transaction
}

func (s *blockingSource) ListAll(ctx context.Context, _ string) ([]transactions.Transaction, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.txs, nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheVersionBump(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	ver, err := cache.Version(ctx, "owner-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	key, err := cache.BuildKey(ctx, "owner-1", "ledger", "x")
	require.NoError(t, err)
	require.Equal(t, "reports:owner-1:ledger:x:v1", key)

	require.NoError(t, cache.Bump(ctx, "owner-1"))
	key, err = cache.BuildKey(ctx, "owner-1", "ledger", "x")
	require.NoError(t, err)
	require.Equal(t, "reports:owner-1:ledger:x:v2", key)

	other, err := cache.Version(ctx, "owner-2")
	require.NoError(t, err)
	require.EqualValues(t, 1, other)
}

func TestNilCacheIsNoop(t *testing.T) {
	var cache *Cache
	require.NoError(t, cache.Bump(context.Background(), "owner-1"))
	var out int
	err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (interface{}, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, out)
}

func TestServiceServesCachedReportUntilBump(t *testing.T) {
	ctx := context.Background()
	source := &stubSource{txs: map[string][]transactions.Transaction{
		"owner-1": {{ID: "t1", Date: day1(1), Type: transactions.TypeSell, Amount: d("1000")}},
	}}
	svc := NewService(source, newTestCache(t), slog.Default())

	pl, err := svc.ProfitAndLoss(ctx, "owner-1", Filter{})
	require.NoError(t, err)
	require.True(t, pl.NetProfit.Equal(d("1000")))

	source.add("owner-1", transactions.Transaction{ID: "t2", Date: day1(2), Type: transactions.TypeExpenditure, SubType: "rent", Amount: d("250")})

	pl, err = svc.ProfitAndLoss(ctx, "owner-1", Filter{})
	require.NoError(t, err)
	require.True(t, pl.NetProfit.Equal(d("1000")), "expected cached result")
	require.Equal(t, 1, source.calls)

	require.NoError(t, svc.Bump(ctx, "owner-1"))
	pl, err = svc.ProfitAndLoss(ctx, "owner-1", Filter{})
	require.NoError(t, err)
	require.True(t, pl.NetProfit.Equal(d("750")))
	require.Equal(t, 2, source.calls)
}

func TestServiceReturnsSourceError(t *testing.T) {
	source := &stubSource{err: errors.New("connection refused")}
	svc := NewService(source, newTestCache(t), slog.Default())

	_, err := svc.TrialBalance(context.Background(), "owner-1", Filter{})
	require.Error(t, err)
	require.ErrorContains(t, err, "connection refused")

	// nothing cached on failure
	source.err = nil
	tb, err := svc.TrialBalance(context.Background(), "owner-1", Filter{})
	require.NoError(t, err)
	require.True(t, tb.Balanced)
}

func TestServiceRequiresOwner(t *testing.T) {
	svc := NewService(&stubSource{}, nil, slog.Default())
	_, err := svc.Ledger(context.Background(), "", Filter{})
	require.ErrorIs(t, err, shared.ErrOwnerRequired)
}

func TestBalanceSheetIgnoresLowerBound(t *testing.T) {
	source := &stubSource{txs: map[string][]transactions.Transaction{
		"owner-1": {
			{ID: "cap", Date: day1(1), Type: transactions.TypeCapitalDrawings, SubType: "capital", Amount: d("500")},
			{ID: "sale", Date: day1(10), Type: transactions.TypeSell, Amount: d("100")},
			{ID: "later", Date: day1(20), Type: transactions.TypeSell, Amount: d("999")},
		},
	}}
	svc := NewService(source, nil, slog.Default())
	bs, err := svc.BalanceSheet(context.Background(), "owner-1", Filter{From: day1(5), To: day1(15)})
	require.NoError(t, err)
	require.True(t, bs.Balanced)
	require.True(t, bs.TotalAssets.Equal(d("600")))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("Trial-Balance")
	require.NoError(t, err)
	require.Equal(t, KindTrialBalance, kind)

	_, err = ParseKind("aging")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestWriteXLSX(t *testing.T) {
	tb := BuildTrialBalance(BuildEntries(sampleTransactions()))
	rr := httptest.NewRecorder()
	require.NoError(t, WriteXLSX(rr, tb.Table()))

	f, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Trial Balance")
	require.NoError(t, err)
	require.Equal(t, []string{"Account", "Type", "Group", "Debit", "Credit", "Balance"}, rows[0])
	require.Len(t, rows, len(tb.Rows)+2)
}

func newReportsRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithOwner(req.Context(), req.Header.Get("X-User-ID"))))
		})
	})
	r.Route("/api/reports", NewHandler(slog.Default(), svc).MountRoutes)
	return r
}

func TestHandlerReports(t *testing.T) {
	source := &stubSource{txs: map[string][]transactions.Transaction{"owner-1": sampleTransactions()}}
	router := newReportsRouter(NewService(source, nil, slog.Default()))

	cases := []struct {
		path string
		code int
	}{
		{"/api/reports/trial-balance", http.StatusOK},
		{"/api/reports/balance-sheet?to=2024-01-31", http.StatusOK},
		{"/api/reports/ledger?account=cash&min_amount=100", http.StatusOK},
		{"/api/reports/gst", http.StatusOK},
		{"/api/reports/aging", http.StatusNotFound},
		{"/api/reports/ledger?from=yesterday", http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("X-User-ID", "owner-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, tc.code, rr.Code, "%s: %s", tc.path, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reports/cash-flow/export", nil)
	req.Header.Set("X-User-ID", "owner-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "cash-flow-")
}

func TestCoalescedReportSurvivesFirstCallerCancel(t *testing.T) {
	source := &blockingSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
		txs:     sampleTransactions(),
	}
	svc := NewService(source, nil, slog.Default())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.TrialBalance(firstCtx, "owner-1", Filter{})
		firstErr <- err
	}()
	<-source.started

	type outcome struct {
		tb  TrialBalance
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		tb, err := svc.TrialBalance(context.Background(), "owner-1", Filter{})
		second <- outcome{tb, err}
	}()
	// Give the second caller time to join the in-flight load.
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(source.release)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		require.True(t, got.tb.Balanced)
	case <-time.After(2 * time.Second):
		t.Fatal("coalesced caller did not return")
	}
}
