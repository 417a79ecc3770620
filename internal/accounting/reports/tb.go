package reports

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AccountBalance aggregates the postings of one account.
type AccountBalance struct {
	Account string
	Class   Classification
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Closing is the debit-positive balance.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// Natural is the balance signed by the account's normal side: debit for
// assets and expenses, credit for everything else.
func (a AccountBalance) Natural() decimal.Decimal {
	switch a.Class.Type {
	case TypeAsset, TypeExpense:
		return a.Closing()
	}
	return a.Closing().Neg()
}

// Balances aggregates entries per account, sorted by account name.
func Balances(entries []Entry) []AccountBalance {
	byName := make(map[string]*AccountBalance)
	for _, e := range entries {
		acc, ok := byName[e.Account]
		if !ok {
			acc = &AccountBalance{Account: e.Account, Class: Classify(e.Account)}
			byName[e.Account] = acc
		}
		acc.Debit = acc.Debit.Add(e.Debit)
		acc.Credit = acc.Credit.Add(e.Credit)
	}
	out := make([]AccountBalance, 0, len(byName))
	for _, acc := range byName {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// TrialBalanceRow is one account line.
type TrialBalanceRow struct {
	Account string          `json:"account"`
	Type    AccountType     `json:"type"`
	Group   Group           `json:"group"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

// TrialBalance lists every account with its totals.
type TrialBalance struct {
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"totalDebit"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
	Balanced    bool              `json:"balanced"`
}

// BuildTrialBalance sums debit and credit per account.
func BuildTrialBalance(entries []Entry) TrialBalance {
	tb := TrialBalance{Rows: []TrialBalanceRow{}}
	for _, acc := range Balances(entries) {
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			Account: acc.Account,
			Type:    acc.Class.Type,
			Group:   acc.Class.Group,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Balance: acc.Closing(),
		})
		tb.TotalDebit = tb.TotalDebit.Add(acc.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(acc.Credit)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb
}
