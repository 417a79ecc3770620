package reports

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/stockbooks/stockbooks/internal/transactions"
)

// Filter narrows the entries a report is built from. Zero values disable a
// criterion.
type Filter struct {
	From        time.Time        `json:"from,omitempty"`
	To          time.Time        `json:"to,omitempty"`
	AccountType string           `json:"accountType,omitempty"`
	Account     string           `json:"account,omitempty"`
	MinAmount   *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount   *decimal.Decimal `json:"maxAmount,omitempty"`
}

// Key renders the filter for cache keys.
func (f Filter) Key() string {
	parts := []string{day(f.From), day(f.To), strings.ToLower(f.AccountType), strings.ToLower(f.Account), amountKey(f.MinAmount), amountKey(f.MaxAmount)}
	return strings.Join(parts, "|")
}

// Apply keeps the entries matching every criterion, preserving order.
func (f Filter) Apply(entries []Entry) []Entry {
	accountType := strings.TrimSpace(f.AccountType)
	account := cases.Fold().String(strings.TrimSpace(f.Account))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !f.inRange(e.Date, e.amount) {
			continue
		}
		if accountType != "" && !strings.EqualFold(accountType, string(e.AccountType)) && !strings.EqualFold(accountType, string(e.Group)) {
			continue
		}
		if account != "" && !strings.Contains(cases.Fold().String(e.Account), account) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Transactions keeps the transactions inside the date and amount range.
// Account criteria do not apply to whole transactions.
func (f Filter) Transactions(txs []transactions.Transaction) []transactions.Transaction {
	out := make([]transactions.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.inRange(tx.Date, tx.Amount) {
			out = append(out, tx)
		}
	}
	return out
}

// AsOf drops the lower date bound, for cumulative reports.
func (f Filter) AsOf() Filter {
	f.From = time.Time{}
	return f
}

// DateOnly drops account and amount criteria.
func (f Filter) DateOnly() Filter {
	return Filter{From: f.From, To: f.To}
}

// inRange compares calendar days, so both bounds are inclusive.
func (f Filter) inRange(date time.Time, amount decimal.Decimal) bool {
	d := day(date)
	if !f.From.IsZero() && d < day(f.From) {
		return false
	}
	if !f.To.IsZero() && d > day(f.To) {
		return false
	}
	if f.MinAmount != nil && amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	return true
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func amountKey(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
