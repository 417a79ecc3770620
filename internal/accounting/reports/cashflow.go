package reports

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CashFlowLine aggregates the cash moved against one counter account.
type CashFlowLine struct {
	Account string          `json:"account"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
}

// CashFlowSection is one of operating, investing or financing.
type CashFlowSection struct {
	Activity Activity        `json:"activity"`
	Lines    []CashFlowLine  `json:"lines"`
	Inflow   decimal.Decimal `json:"inflow"`
	Outflow  decimal.Decimal `json:"outflow"`
	Net      decimal.Decimal `json:"net"`
}

// CashFlow is the cash flow statement.
type CashFlow struct {
	Operating CashFlowSection `json:"operating"`
	Investing CashFlowSection `json:"investing"`
	Financing CashFlowSection `json:"financing"`
	NetChange decimal.Decimal `json:"netChange"`
}

// BuildCashFlow reads the cash side of every entry pair. A debit to cash is
// an inflow and a credit an outflow, classified by the activity of the
// counter account. Pairs with cash on both sides or on neither are ignored.
func BuildCashFlow(entries []Entry) CashFlow {
	sections := map[Activity]map[string]*CashFlowLine{
		ActivityOperating: {},
		ActivityInvesting: {},
		ActivityFinancing: {},
	}
	for i := 0; i+1 < len(entries); i += 2 {
		debit, credit := entries[i], entries[i+1]
		if debit.TransactionID != credit.TransactionID {
			// misaligned pair: resync on the next entry
			i--
			continue
		}
		var counter Entry
		var inflow bool
		switch {
		case debit.cash && !credit.cash:
			counter, inflow = credit, true
		case credit.cash && !debit.cash:
			counter, inflow = debit, false
		default:
			continue
		}
		lines := sections[counter.Activity]
		if lines == nil {
			lines = sections[ActivityOperating]
		}
		line, ok := lines[counter.Account]
		if !ok {
			line = &CashFlowLine{Account: counter.Account}
			lines[counter.Account] = line
		}
		amount := debit.Debit
		if inflow {
			line.Inflow = line.Inflow.Add(amount)
		} else {
			line.Outflow = line.Outflow.Add(amount)
		}
	}

	cf := CashFlow{
		Operating: buildSection(ActivityOperating, sections[ActivityOperating]),
		Investing: buildSection(ActivityInvesting, sections[ActivityInvesting]),
		Financing: buildSection(ActivityFinancing, sections[ActivityFinancing]),
	}
	cf.NetChange = cf.Operating.Net.Add(cf.Investing.Net).Add(cf.Financing.Net)
	return cf
}

func buildSection(activity Activity, lines map[string]*CashFlowLine) CashFlowSection {
	section := CashFlowSection{Activity: activity, Lines: make([]CashFlowLine, 0, len(lines))}
	for _, line := range lines {
		section.Lines = append(section.Lines, *line)
		section.Inflow = section.Inflow.Add(line.Inflow)
		section.Outflow = section.Outflow.Add(line.Outflow)
	}
	sort.Slice(section.Lines, func(i, j int) bool { return section.Lines[i].Account < section.Lines[j].Account })
	section.Net = section.Inflow.Sub(section.Outflow)
	return section
}
