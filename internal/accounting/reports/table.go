package reports

import (
	"github.com/shopspring/decimal"
)

// Table is a flat rendering of a report for spreadsheets and terminals.
type Table struct {
	Title  string
	Header []string
	Rows   [][]interface{}
}

func (t *Table) add(cells ...interface{}) {
	t.Rows = append(t.Rows, cells)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

const dateLayout = "2006-01-02"

// Table renders the ledger one posting per row.
func (l Ledger) Table() Table {
	t := Table{Title: "Ledger", Header: []string{"Account", "Date", "Transaction", "Description", "Debit", "Credit", "Balance"}}
	for _, acc := range l.Accounts {
		for _, row := range acc.Rows {
			t.add(acc.Account, row.Date.Format(dateLayout), row.TransactionID, row.Description,
				money(row.Debit), money(row.Credit), money(row.Balance))
		}
		t.add(acc.Account, "", "", "Closing", money(acc.TotalDebit), money(acc.TotalCredit), money(acc.Closing))
	}
	return t
}

func (tb TrialBalance) Table() Table {
	t := Table{Title: "Trial Balance", Header: []string{"Account", "Type", "Group", "Debit", "Credit", "Balance"}}
	for _, row := range tb.Rows {
		t.add(row.Account, string(row.Type), string(row.Group), money(row.Debit), money(row.Credit), money(row.Balance))
	}
	t.add("Total", "", "", money(tb.TotalDebit), money(tb.TotalCredit), money(tb.TotalDebit.Sub(tb.TotalCredit)))
	return t
}

func (bs BalanceSheet) Table() Table {
	t := Table{Title: "Balance Sheet", Header: []string{"Section", "Account", "Balance"}}
	for _, section := range []BalanceSheetSection{bs.CurrentAssets, bs.FixedAssets, bs.CurrentLiabilities, bs.LongTermLiabilities, bs.Equity} {
		for _, acc := range section.Accounts {
			t.add(section.Label, acc.Account, money(acc.Balance))
		}
		t.add(section.Label, "Total", money(section.Total))
	}
	t.add("Total Assets", "", money(bs.TotalAssets))
	t.add("Total Liabilities & Equity", "", money(bs.TotalLiabilitiesAndEquity))
	return t
}

func (pl ProfitAndLoss) Table() Table {
	t := Table{Title: "Profit & Loss", Header: []string{"Section", "Account", "Amount"}}
	for _, section := range []ProfitAndLossSection{pl.Revenue, pl.Expense} {
		for _, acc := range section.Accounts {
			t.add(section.Label, acc.Account, money(acc.Amount))
		}
		t.add(section.Label, "Total", money(section.Total))
	}
	t.add("Net Profit", "", money(pl.NetProfit))
	return t
}

func (cf CashFlow) Table() Table {
	t := Table{Title: "Cash Flow", Header: []string{"Activity", "Account", "Inflow", "Outflow", "Net"}}
	for _, section := range []CashFlowSection{cf.Operating, cf.Investing, cf.Financing} {
		for _, line := range section.Lines {
			t.add(string(section.Activity), line.Account, money(line.Inflow), money(line.Outflow), money(line.Inflow.Sub(line.Outflow)))
		}
		t.add(string(section.Activity), "Total", money(section.Inflow), money(section.Outflow), money(section.Net))
	}
	t.add("Net Change", "", "", "", money(cf.NetChange))
	return t
}

func (g GSTSummary) Table() Table {
	t := Table{Title: "GST Summary", Header: []string{"Side", "Date", "Transaction", "Party", "Taxable", "Rate", "CGST", "SGST", "IGST", "Tax"}}
	sides := []struct {
		label string
		side  GSTSide
	}{{"Output", g.Output}, {"Input", g.Input}}
	for _, s := range sides {
		for _, line := range s.side.Lines {
			t.add(s.label, line.Date.Format(dateLayout), line.TransactionID, line.Party, money(line.Taxable),
				line.Rate.String(), money(line.CGST), money(line.SGST), money(line.IGST), money(line.Tax))
		}
		t.add(s.label, "", "Total", "", money(s.side.Taxable), "", money(s.side.CGST), money(s.side.SGST),
			money(s.side.IGST), money(s.side.Tax))
	}
	t.add("Net Payable", "", "", "", "", "", "", "", "", money(g.NetPayable))
	return t
}
