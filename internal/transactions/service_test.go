package transactions

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
	"github.com/stockbooks/stockbooks/internal/shared"
	_ "github.com/stockbooks/stockbooks/testing"
)

type memoryRepo struct {
	items map[string]Transaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]Transaction)}
}

func (r *memoryRepo) Insert(ctx context.Context, tx Transaction) error {
	r.items[tx.ID] = tx
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, ownerID, id string) (Transaction, error) {
	tx, ok := r.items[id]
	if !ok || tx.OwnerID != ownerID {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (r *memoryRepo) Update(ctx context.Context, tx Transaction) error {
	if _, ok := r.items[tx.ID]; !ok {
		return ErrNotFound
	}
	r.items[tx.ID] = tx
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := r.Get(ctx, ownerID, id); err != nil {
		return err
	}
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	all, _ := r.ListAll(ctx, filter.OwnerID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	start := (filter.Page - 1) * filter.PerPage
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *memoryRepo) ListAll(ctx context.Context, ownerID string) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range r.items {
		if tx.OwnerID == ownerID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type recordingDispatcher struct {
	dispatched []Transaction
	err        error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, tx Transaction) error {
	d.dispatched = append(d.dispatched, tx)
	return d.err
}

type countingBumper struct {
	owners []string
}

func (b *countingBumper) Bump(ctx context.Context, ownerID string) error {
	b.owners = append(b.owners, ownerID)
	return nil
}

func sellInput(amount int64) Input {
	return Input{
		Date:          time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Type:          TypeSell,
		Amount:        decimal.NewFromInt(amount),
		Description:   "Counter sale",
		PaymentMethod: "cash",
	}
}

func TestCreateStoresDispatchesAndBumps(t *testing.T) {
	repo := newMemoryRepo()
	dispatcher := &recordingDispatcher{}
	bumper := &countingBumper{}
	svc := NewService(repo, dispatcher, bumper, nil, nil)

	tx, err := svc.Create(context.Background(), "owner-1", sellInput(1000))
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID)
	require.Equal(t, "owner-1", tx.OwnerID)
	require.Len(t, dispatcher.dispatched, 1)
	require.Equal(t, tx.ID, dispatcher.dispatched[0].ID)
	require.Equal(t, []string{"owner-1"}, bumper.owners)

	stored, err := svc.Get(context.Background(), "owner-1", tx.ID)
	require.NoError(t, err)
	require.True(t, stored.Amount.Equal(decimal.NewFromInt(1000)))
}

func TestCreateKeepsTransactionWhenDispatchFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &recordingDispatcher{err: errors.New("queue down")}, nil, nil, nil)

	tx, err := svc.Create(context.Background(), "owner-1", sellInput(50))
	require.NoError(t, err)
	require.Contains(t, repo.items, tx.ID)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "owner-1", sellInput(0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	input := sellInput(10)
	input.Type = "GIFT"
	_, err = svc.Create(ctx, "owner-1", input)
	require.ErrorIs(t, err, httpx.ErrValidation)

	input = sellInput(10)
	input.Date = time.Time{}
	_, err = svc.Create(ctx, "owner-1", input)
	require.ErrorIs(t, err, httpx.ErrValidation)

	input = sellInput(10)
	rate := decimal.NewFromInt(120)
	input.GSTRate = &rate
	_, err = svc.Create(ctx, "owner-1", input)
	require.ErrorIs(t, err, ErrInvalidGSTRate)

	_, err = svc.Create(ctx, "", sellInput(10))
	require.ErrorIs(t, err, shared.ErrOwnerRequired)
}

func TestCreateDefaultsGSTRateOnlyWhenUnset(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	ctx := context.Background()

	input := sellInput(100)
	input.GSTApplicable = true
	tx, err := svc.Create(ctx, "owner-1", input)
	require.NoError(t, err)
	require.True(t, DefaultGSTRate.Equal(tx.GSTRate), tx.GSTRate.String())

	zero := decimal.Zero
	input.GSTRate = &zero
	tx, err = svc.Create(ctx, "owner-1", input)
	require.NoError(t, err)
	require.True(t, tx.GSTRate.IsZero(), tx.GSTRate.String())

	stored, err := svc.Get(ctx, "owner-1", tx.ID)
	require.NoError(t, err)
	require.True(t, stored.GSTRate.IsZero())
}

func TestUpdateAndDeleteAreOwnerScoped(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, "owner-1", sellInput(100))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "owner-2", tx.ID, sellInput(200))
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := svc.Update(ctx, "owner-1", tx.ID, sellInput(200))
	require.NoError(t, err)
	require.True(t, updated.Amount.Equal(decimal.NewFromInt(200)))
	require.Equal(t, tx.CreatedAt, updated.CreatedAt)

	require.ErrorIs(t, svc.Delete(ctx, "owner-2", tx.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "owner-1", tx.ID))
	_, err = svc.Get(ctx, "owner-1", tx.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPaginates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		input := sellInput(int64(10 + i))
		input.Date = input.Date.AddDate(0, 0, i)
		_, err := svc.Create(ctx, "owner-1", input)
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListFilter{OwnerID: "owner-1", Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Equal(t, 3, page.Pages)
	require.Len(t, page.Items, 2)
	require.True(t, page.Items[0].Amount.Equal(decimal.NewFromInt(12)))
}

func TestResyncDispatchesStoredTransaction(t *testing.T) {
	repo := newMemoryRepo()
	dispatcher := &recordingDispatcher{}
	svc := NewService(repo, dispatcher, nil, nil, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, "owner-1", sellInput(100))
	require.NoError(t, err)
	_, err = svc.Resync(ctx, "owner-1", tx.ID)
	require.NoError(t, err)
	require.Len(t, dispatcher.dispatched, 2)
}
