package reports

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbooks/stockbooks/internal/transactions"
)

// GSTTypeIGST marks interstate supplies taxed as a single integrated levy.
const GSTTypeIGST = "IGST"

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// GSTLine is the tax computed for one transaction.
type GSTLine struct {
	TransactionID string            `json:"transactionId"`
	Date          time.Time         `json:"date"`
	Type          transactions.Type `json:"type"`
	Party         string            `json:"party,omitempty"`
	Taxable       decimal.Decimal   `json:"taxable"`
	Rate          decimal.Decimal   `json:"rate"`
	CGST          decimal.Decimal   `json:"cgst"`
	SGST          decimal.Decimal   `json:"sgst"`
	IGST          decimal.Decimal   `json:"igst"`
	Tax           decimal.Decimal   `json:"tax"`
}

// GSTSide totals output (sales) or input (purchases) tax.
type GSTSide struct {
	Lines   []GSTLine       `json:"lines"`
	Taxable decimal.Decimal `json:"taxable"`
	CGST    decimal.Decimal `json:"cgst"`
	SGST    decimal.Decimal `json:"sgst"`
	IGST    decimal.Decimal `json:"igst"`
	Tax     decimal.Decimal `json:"tax"`
}

func (s *GSTSide) add(line GSTLine) {
	s.Lines = append(s.Lines, line)
	s.Taxable = s.Taxable.Add(line.Taxable)
	s.CGST = s.CGST.Add(line.CGST)
	s.SGST = s.SGST.Add(line.SGST)
	s.IGST = s.IGST.Add(line.IGST)
	s.Tax = s.Tax.Add(line.Tax)
}

// GSTSummary nets output tax against input tax credit.
type GSTSummary struct {
	Output     GSTSide         `json:"output"`
	Input      GSTSide         `json:"input"`
	NetPayable decimal.Decimal `json:"netPayable"`
}

// BuildGSTSummary computes tax on GST applicable transactions. The amount is
// the taxable value; SELL produces output tax, BUY and EXPENDITURE input
// tax. IGST keeps the whole tax, anything else splits it into CGST and SGST.
func BuildGSTSummary(txs []transactions.Transaction) GSTSummary {
	summary := GSTSummary{
		Output: GSTSide{Lines: []GSTLine{}},
		Input:  GSTSide{Lines: []GSTLine{}},
	}
	for _, tx := range txs {
		if !tx.GSTApplicable {
			continue
		}
		var side *GSTSide
		party := tx.BuyerName
		switch tx.Type {
		case transactions.TypeSell:
			side = &summary.Output
		case transactions.TypeBuy, transactions.TypeExpenditure:
			side = &summary.Input
			party = tx.VendorName
		default:
			continue
		}
		side.add(gstLine(tx, party))
	}
	summary.NetPayable = summary.Output.Tax.Sub(summary.Input.Tax)
	return summary
}

func gstLine(tx transactions.Transaction, party string) GSTLine {
	rate := tx.GSTRate
	tax := tx.Amount.Mul(rate).Div(hundred).Round(2)
	line := GSTLine{
		TransactionID: tx.ID,
		Date:          tx.Date,
		Type:          tx.Type,
		Party:         party,
		Taxable:       tx.Amount,
		Rate:          rate,
		Tax:           tax,
	}
	if strings.EqualFold(strings.TrimSpace(tx.GSTType), GSTTypeIGST) {
		line.IGST = tax
		return line
	}
	line.CGST = tax.Div(two).Round(2)
	line.SGST = tax.Sub(line.CGST)
	return line
}
