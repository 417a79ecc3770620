package reports

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// AccountType is the accounting element an account belongs to.
type AccountType string

const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIABILITY"
	TypeEquity    AccountType = "EQUITY"
	TypeRevenue   AccountType = "REVENUE"
	TypeExpense   AccountType = "EXPENSE"
)

// Group buckets accounts for balance sheet and profit & loss presentation.
type Group string

const (
	GroupCurrentAssets       Group = "Current Assets"
	GroupFixedAssets         Group = "Fixed Assets"
	GroupCurrentLiabilities  Group = "Current Liabilities"
	GroupLongTermLiabilities Group = "Long-term Liabilities"
	GroupEquity              Group = "Equity"
	GroupRevenue             Group = "Revenue"
	GroupExpenses            Group = "Expenses"
)

// Activity is the cash flow section an account's movements fall into.
type Activity string

const (
	ActivityOperating Activity = "Operating"
	ActivityInvesting Activity = "Investing"
	ActivityFinancing Activity = "Financing"
)

// Account names produced by the transaction mapping.
const (
	AccountCashBank           = "Cash/Bank"
	AccountCash               = "Cash"
	AccountBank               = "Bank"
	AccountAccountsReceivable = "Accounts Receivable"
	AccountSales              = "Sales"
	AccountInventory          = "Inventory"
	AccountFixedAssets        = "Fixed Assets"
	AccountPurchases          = "Purchases"
	AccountAccountsPayable    = "Accounts Payable"
	AccountDrawings           = "Drawings"
	AccountCapital            = "Capital"
	AccountLoanPayable        = "Loan Payable"
	AccountLoanReceivable     = "Loan Receivable"
	AccountGeneralExpense     = "General Expense"
)

// Classification places an account in the reports.
type Classification struct {
	Type     AccountType `json:"type"`
	Group    Group       `json:"group"`
	Activity Activity    `json:"activity"`
	Cash     bool        `json:"cash,omitempty"`
}

var (
	currentAsset     = Classification{Type: TypeAsset, Group: GroupCurrentAssets, Activity: ActivityOperating}
	cashAsset        = Classification{Type: TypeAsset, Group: GroupCurrentAssets, Activity: ActivityOperating, Cash: true}
	fixedAsset       = Classification{Type: TypeAsset, Group: GroupFixedAssets, Activity: ActivityInvesting}
	lentAsset        = Classification{Type: TypeAsset, Group: GroupCurrentAssets, Activity: ActivityInvesting}
	currentLiability = Classification{Type: TypeLiability, Group: GroupCurrentLiabilities, Activity: ActivityOperating}
	longTermLoan     = Classification{Type: TypeLiability, Group: GroupLongTermLiabilities, Activity: ActivityFinancing}
	ownerEquity      = Classification{Type: TypeEquity, Group: GroupEquity, Activity: ActivityFinancing}
	revenue          = Classification{Type: TypeRevenue, Group: GroupRevenue, Activity: ActivityOperating}
	expense          = Classification{Type: TypeExpense, Group: GroupExpenses, Activity: ActivityOperating}
)

// chart classifies every account the mapping can produce.
var chart = map[string]Classification{
	AccountCashBank:           cashAsset,
	AccountCash:               cashAsset,
	AccountBank:               cashAsset,
	AccountAccountsReceivable: currentAsset,
	AccountInventory:          currentAsset,
	AccountLoanReceivable:     lentAsset,
	AccountFixedAssets:        fixedAsset,
	AccountAccountsPayable:    currentLiability,
	AccountLoanPayable:        longTermLoan,
	AccountCapital:            ownerEquity,
	AccountDrawings:           ownerEquity,
	AccountSales:              revenue,
	AccountPurchases:          expense,
	AccountGeneralExpense:     expense,
}

// keywordRules run in order and match whole words; liability keywords come
// before asset ones so a name like "Loan Payable to Bank" lands in
// liabilities, prepayments come before expenses so "Prepaid Rent" stays an
// asset, and "cost" comes before revenue so "Cost of Sales" is an expense.
var keywordRules = []struct {
	keywords []string
	class    Classification
}{
	{[]string{"loan", "loans", "mortgage", "debenture", "debentures"}, longTermLoan},
	{[]string{"payable", "payables", "creditor", "creditors", "accrued", "overdraft"}, currentLiability},
	{[]string{"capital", "drawing", "drawings", "equity", "retained"}, ownerEquity},
	{[]string{"prepaid", "prepayment", "prepayments"}, currentAsset},
	{[]string{"cost", "costs"}, expense},
	{[]string{"sales", "revenue", "revenues", "income"}, revenue},
	{[]string{"expense", "expenses", "purchase", "purchases", "salary", "salaries", "rent", "wage", "wages"}, expense},
	{[]string{"receivable", "receivables", "debtor", "debtors", "inventory", "stock"}, currentAsset},
	{[]string{"cash", "bank"}, cashAsset},
	{[]string{"equipment", "machinery", "vehicle", "vehicles", "furniture", "building", "buildings", "land", "asset", "assets"}, fixedAsset},
}

// Classify returns the chart entry for account. Unknown names ending in
// "Expense" are expenses; anything else goes through the keyword rules and
// finally defaults to an operating expense.
func Classify(account string) Classification {
	if c, ok := chart[account]; ok {
		return c
	}
	folded := cases.Fold().String(strings.TrimSpace(account))
	for name, c := range chart {
		if cases.Fold().String(name) == folded {
			return c
		}
	}
	if folded == "expense" || strings.HasSuffix(folded, " expense") {
		return expense
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if slices.Contains(words, kw) {
				return rule.class
			}
		}
	}
	return expense
}
