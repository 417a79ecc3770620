package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerRow is one posting with the account balance after it.
type LedgerRow struct {
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transactionId"`
	Description   string          `json:"description"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal `json:"balance"`
}

// LedgerAccount holds the postings of one account in date order.
type LedgerAccount struct {
	Account     string          `json:"account"`
	Type        AccountType     `json:"type"`
	Group       Group           `json:"group"`
	Rows        []LedgerRow     `json:"rows"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
	Closing     decimal.Decimal `json:"closing"`
}

// Ledger lists accounts by name.
type Ledger struct {
	Accounts []LedgerAccount `json:"accounts"`
}

// BuildLedger groups entries per account with a running balance of
// debit minus credit. Entries on the same date keep their input order.
func BuildLedger(entries []Entry) Ledger {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	accounts := make(map[string]*LedgerAccount)
	names := make([]string, 0)
	for _, e := range sorted {
		acc, ok := accounts[e.Account]
		if !ok {
			acc = &LedgerAccount{Account: e.Account, Type: e.AccountType, Group: e.Group}
			accounts[e.Account] = acc
			names = append(names, e.Account)
		}
		acc.TotalDebit = acc.TotalDebit.Add(e.Debit)
		acc.TotalCredit = acc.TotalCredit.Add(e.Credit)
		acc.Closing = acc.Closing.Add(e.Debit).Sub(e.Credit)
		acc.Rows = append(acc.Rows, LedgerRow{
			Date:          e.Date,
			TransactionID: e.TransactionID,
			Description:   e.Description,
			Debit:         e.Debit,
			Credit:        e.Credit,
			Balance:       acc.Closing,
		})
	}

	sort.Strings(names)
	ledger := Ledger{Accounts: make([]LedgerAccount, 0, len(names))}
	for _, name := range names {
		ledger.Accounts = append(ledger.Accounts, *accounts[name])
	}
	return ledger
}

// Account returns the ledger of one account.
func (l Ledger) Account(name string) (LedgerAccount, bool) {
	for _, acc := range l.Accounts {
		if acc.Account == name {
			return acc, true
		}
	}
	return LedgerAccount{}, false
}
