package reports

import "github.com/shopspring/decimal"

// NetIncomeLabel names the equity line carrying the period result.
const NetIncomeLabel = "Net Income"

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Account string          `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

func (s *BalanceSheetSection) add(account string, balance decimal.Decimal) {
	s.Accounts = append(s.Accounts, BalanceSheetAccount{Account: account, Balance: balance})
	s.Total = s.Total.Add(balance)
}

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	CurrentAssets             BalanceSheetSection `json:"currentAssets"`
	FixedAssets               BalanceSheetSection `json:"fixedAssets"`
	CurrentLiabilities        BalanceSheetSection `json:"currentLiabilities"`
	LongTermLiabilities       BalanceSheetSection `json:"longTermLiabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	TotalAssets               decimal.Decimal     `json:"totalAssets"`
	TotalLiabilities          decimal.Decimal     `json:"totalLiabilities"`
	TotalLiabilitiesAndEquity decimal.Decimal     `json:"totalLiabilitiesAndEquity"`
	Balanced                  bool                `json:"balanced"`
}

// BuildBalanceSheet buckets asset, liability and equity balances. Equity
// carries capital less drawings plus the net income of the same entries.
func BuildBalanceSheet(entries []Entry) BalanceSheet {
	balances := Balances(entries)
	bs := BalanceSheet{
		CurrentAssets:       newSection(string(GroupCurrentAssets)),
		FixedAssets:         newSection(string(GroupFixedAssets)),
		CurrentLiabilities:  newSection(string(GroupCurrentLiabilities)),
		LongTermLiabilities: newSection(string(GroupLongTermLiabilities)),
		Equity:              newSection(string(GroupEquity)),
	}

	for _, acc := range balances {
		balance := acc.Natural()
		switch acc.Class.Group {
		case GroupCurrentAssets:
			bs.CurrentAssets.add(acc.Account, balance)
		case GroupFixedAssets:
			bs.FixedAssets.add(acc.Account, balance)
		case GroupCurrentLiabilities:
			bs.CurrentLiabilities.add(acc.Account, balance)
		case GroupLongTermLiabilities:
			bs.LongTermLiabilities.add(acc.Account, balance)
		case GroupEquity:
			bs.Equity.add(acc.Account, balance)
		}
	}
	bs.Equity.add(NetIncomeLabel, profitAndLoss(balances).NetProfit)

	bs.TotalAssets = bs.CurrentAssets.Total.Add(bs.FixedAssets.Total)
	bs.TotalLiabilities = bs.CurrentLiabilities.Total.Add(bs.LongTermLiabilities.Total)
	bs.TotalLiabilitiesAndEquity = bs.TotalLiabilities.Add(bs.Equity.Total)
	bs.Balanced = bs.TotalAssets.Equal(bs.TotalLiabilitiesAndEquity)
	return bs
}

func newSection(label string) BalanceSheetSection {
	return BalanceSheetSection{Label: label, Accounts: []BalanceSheetAccount{}}
}
