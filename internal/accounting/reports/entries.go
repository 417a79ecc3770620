package reports

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stockbooks/stockbooks/internal/transactions"
)

// Entry is one synthetic ledger line derived from a transaction.
type Entry struct {
	TransactionID string          `json:"transactionId"`
	Date          time.Time       `json:"date"`
	Account       string          `json:"account"`
	AccountType   AccountType     `json:"accountType"`
	Group         Group           `json:"group"`
	Activity      Activity        `json:"activity"`
	Description   string          `json:"description"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`

	// amount of the source transaction, used by amount filters.
	amount decimal.Decimal
	cash   bool
}

// Entries maps a transaction to its debit and credit line. The debit line
// always comes first.
func Entries(tx transactions.Transaction) []Entry {
	debit, credit := accountsFor(tx)
	return []Entry{
		line(tx, debit, tx.Amount, decimal.Zero),
		line(tx, credit, decimal.Zero, tx.Amount),
	}
}

// BuildEntries maps every transaction, keeping input order.
func BuildEntries(txs []transactions.Transaction) []Entry {
	entries := make([]Entry, 0, len(txs)*2)
	for _, tx := range txs {
		entries = append(entries, Entries(tx)...)
	}
	return entries
}

func line(tx transactions.Transaction, account string, debit, credit decimal.Decimal) Entry {
	c := Classify(account)
	return Entry{
		TransactionID: tx.ID,
		Date:          tx.Date,
		Account:       account,
		AccountType:   c.Type,
		Group:         c.Group,
		Activity:      c.Activity,
		Description:   tx.Description,
		Debit:         debit,
		Credit:        credit,
		amount:        tx.Amount,
		cash:          c.Cash,
	}
}

func accountsFor(tx transactions.Transaction) (debit, credit string) {
	switch tx.Type {
	case transactions.TypeSell:
		if tx.OnCredit() {
			return AccountAccountsReceivable, AccountSales
		}
		return AccountCashBank, AccountSales
	case transactions.TypeBuy:
		credit = AccountCashBank
		if tx.OnCredit() {
			credit = AccountAccountsPayable
		}
		switch {
		case tx.IsSubType(transactions.SubTypeInventory):
			return AccountInventory, credit
		case tx.IsSubType(transactions.SubTypeAsset):
			return AccountFixedAssets, credit
		}
		return AccountPurchases, credit
	case transactions.TypeExpenditure:
		return expenseAccount(tx.SubType), AccountCashBank
	case transactions.TypeCapitalDrawings:
		if tx.IsSubType(transactions.SubTypeDrawings) {
			return AccountDrawings, AccountCashBank
		}
		return AccountCashBank, AccountCapital
	case transactions.TypeBank:
		if tx.IsSubType(transactions.SubTypeWithdrawal) {
			return AccountCash, AccountBank
		}
		return AccountBank, AccountCash
	case transactions.TypeLoan:
		switch {
		case tx.IsSubType(transactions.SubTypeRepayment):
			return AccountLoanPayable, AccountCashBank
		case tx.IsSubType(transactions.SubTypeGiven):
			return AccountLoanReceivable, AccountCashBank
		}
		return AccountCashBank, AccountLoanPayable
	}
	return AccountGeneralExpense, AccountCashBank
}

// expenseAccount names the expense account of an expenditure sub type,
// e.g. "rent" becomes "Rent Expense".
func expenseAccount(subType string) string {
	name := strings.Join(strings.Fields(subType), " ")
	if name == "" {
		return AccountGeneralExpense
	}
	name = cases.Title(language.English).String(name)
	if strings.HasSuffix(name, " Expense") || name == "Expense" {
		return name
	}
	return name + " Expense"
}
