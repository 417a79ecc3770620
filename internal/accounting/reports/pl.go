package reports

import "github.com/shopspring/decimal"

// ProfitAndLossAccount represents a revenue or expense account summary.
type ProfitAndLossAccount struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	Revenue   ProfitAndLossSection `json:"revenue"`
	Expense   ProfitAndLossSection `json:"expense"`
	NetProfit decimal.Decimal      `json:"netProfit"`
}

// BuildProfitAndLoss aggregates revenue and expense accounts.
func BuildProfitAndLoss(entries []Entry) ProfitAndLoss {
	return profitAndLoss(Balances(entries))
}

func profitAndLoss(balances []AccountBalance) ProfitAndLoss {
	revenue := ProfitAndLossSection{Label: "Revenue", Accounts: []ProfitAndLossAccount{}}
	expense := ProfitAndLossSection{Label: "Expenses", Accounts: []ProfitAndLossAccount{}}

	for _, acc := range balances {
		row := ProfitAndLossAccount{Account: acc.Account, Amount: acc.Natural()}
		switch acc.Class.Type {
		case TypeRevenue:
			revenue.Accounts = append(revenue.Accounts, row)
			revenue.Total = revenue.Total.Add(row.Amount)
		case TypeExpense:
			expense.Accounts = append(expense.Accounts, row)
			expense.Total = expense.Total.Add(row.Amount)
		}
	}

	return ProfitAndLoss{
		Revenue:   revenue,
		Expense:   expense,
		NetProfit: revenue.Total.Sub(expense.Total),
	}
}
