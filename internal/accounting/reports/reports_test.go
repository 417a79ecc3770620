package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbooks/stockbooks/internal/transactions"
	_ "github.com/stockbooks/stockbooks/testing"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day1(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func sampleTransactions() []transactions.Transaction {
	return []transactions.Transaction{
		{ID: "cap", Date: day1(1), Type: transactions.TypeCapitalDrawings, SubType: "capital", Amount: d("5000"), Description: "Owner capital"},
		{ID: "inv", Date: day1(2), Type: transactions.TypeBuy, SubType: "inventory", Amount: d("1200"), Description: "Stock"},
		{ID: "sale", Date: day1(3), Type: transactions.TypeSell, Amount: d("1000"), Description: "Counter sale"},
		{ID: "credit-sale", Date: day1(3), Type: transactions.TypeSell, PaymentMethod: "credit", Amount: d("400")},
		{ID: "rent", Date: day1(4), Type: transactions.TypeExpenditure, SubType: "rent", Amount: d("300")},
		{ID: "van", Date: day1(5), Type: transactions.TypeBuy, SubType: "asset", PaymentMethod: "credit", Amount: d("2500")},
		{ID: "loan", Date: day1(6), Type: transactions.TypeLoan, SubType: "taken", Amount: d("2000")},
		{ID: "repay", Date: day1(7), Type: transactions.TypeLoan, SubType: "repayment", Amount: d("500")},
		{ID: "draw", Date: day1(8), Type: transactions.TypeCapitalDrawings, SubType: "drawings", Amount: d("200")},
		{ID: "dep", Date: day1(9), Type: transactions.TypeBank, SubType: "deposit", Amount: d("700")},
	}
}

func TestSellMapsToCashAndSales(t *testing.T) {
	entries := Entries(transactions.Transaction{ID: "t1", Type: transactions.TypeSell, Amount: d("1000")})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Account != "Cash/Bank" || !entries[0].Debit.Equal(d("1000")) || !entries[0].Credit.IsZero() {
		t.Fatalf("unexpected debit line: %+v", entries[0])
	}
	if entries[1].Account != "Sales" || !entries[1].Credit.Equal(d("1000")) || !entries[1].Debit.IsZero() {
		t.Fatalf("unexpected credit line: %+v", entries[1])
	}
	net := entries[0].Debit.Sub(entries[0].Credit).Add(entries[1].Debit).Sub(entries[1].Credit)
	if !net.IsZero() {
		t.Fatalf("expected zero net, got %s", net)
	}
}

func TestMappingTable(t *testing.T) {
	cases := []struct {
		tx            transactions.Transaction
		debit, credit string
	}{
		{transactions.Transaction{Type: transactions.TypeSell, PaymentMethod: "Credit"}, "Accounts Receivable", "Sales"},
		{transactions.Transaction{Type: transactions.TypeBuy, SubType: "inventory"}, "Inventory", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeBuy, SubType: "inventory", PaymentMethod: "credit"}, "Inventory", "Accounts Payable"},
		{transactions.Transaction{Type: transactions.TypeBuy, SubType: "asset"}, "Fixed Assets", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeBuy}, "Purchases", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeExpenditure, SubType: "office supplies"}, "Office Supplies Expense", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeExpenditure}, "General Expense", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeCapitalDrawings, SubType: "drawings"}, "Drawings", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeCapitalDrawings, SubType: "capital"}, "Cash/Bank", "Capital"},
		{transactions.Transaction{Type: transactions.TypeBank, SubType: "withdrawal"}, "Cash", "Bank"},
		{transactions.Transaction{Type: transactions.TypeBank, SubType: "deposit"}, "Bank", "Cash"},
		{transactions.Transaction{Type: transactions.TypeLoan, SubType: "repayment"}, "Loan Payable", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeLoan, SubType: "given"}, "Loan Receivable", "Cash/Bank"},
		{transactions.Transaction{Type: transactions.TypeLoan, SubType: "taken"}, "Cash/Bank", "Loan Payable"},
	}
	for _, tc := range cases {
		tc.tx.Amount = d("10")
		entries := Entries(tc.tx)
		if entries[0].Account != tc.debit || entries[1].Account != tc.credit {
			t.Fatalf("%s/%s: expected %s/%s got %s/%s", tc.tx.Type, tc.tx.SubType, tc.debit, tc.credit, entries[0].Account, entries[1].Account)
		}
	}
}

func TestClassifyKeywordOverlap(t *testing.T) {
	if c := Classify("Loan Payable to Bank"); c.Type != TypeLiability {
		t.Fatalf("expected liability, got %+v", c)
	}
	if c := Classify("Petty Cash"); c.Type != TypeAsset || !c.Cash {
		t.Fatalf("expected cash asset, got %+v", c)
	}
	if c := Classify("Loan Interest Expense"); c.Type != TypeExpense {
		t.Fatalf("expected expense, got %+v", c)
	}
	if c := Classify("loan receivable"); c.Type != TypeAsset {
		t.Fatalf("expected chart lookup to ignore case, got %+v", c)
	}
}

func TestClassifyMatchesWholeWords(t *testing.T) {
	cases := []struct {
		account string
		want    Classification
	}{
		{"Rental Income", revenue},
		{"Prepaid Rent", currentAsset},
		{"Office Rent", expense},
		{"Accrued Rent", currentLiability},
		{"Cost of Sales", expense},
		{"Trade Debtors", currentAsset},
		{"Owner's Drawings", ownerEquity},
		{"Delivery Vehicles", fixedAsset},
		{"Bankruptcy Reserve", expense},
	}
	for _, tc := range cases {
		if got := Classify(tc.account); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.account, tc.want, got)
		}
	}
}

func TestLedgerRunningBalanceKeepsTieOrder(t *testing.T) {
	txs := []transactions.Transaction{
		{ID: "late", Date: day1(5), Type: transactions.TypeSell, Amount: d("50")},
		{ID: "a", Date: day1(2), Type: transactions.TypeSell, Amount: d("100")},
		{ID: "b", Date: day1(2), Type: transactions.TypeExpenditure, Amount: d("30")},
		{ID: "c", Date: day1(2), Type: transactions.TypeSell, Amount: d("10")},
	}
	ledger := BuildLedger(BuildEntries(txs))
	cash, ok := ledger.Account("Cash/Bank")
	if !ok {
		t.Fatalf("cash account missing")
	}
	wantIDs := []string{"a", "b", "c", "late"}
	wantBalances := []string{"100", "70", "80", "130"}
	if len(cash.Rows) != len(wantIDs) {
		t.Fatalf("expected %d rows got %d", len(wantIDs), len(cash.Rows))
	}
	running := decimal.Zero
	for i, row := range cash.Rows {
		running = running.Add(row.Debit).Sub(row.Credit)
		if row.TransactionID != wantIDs[i] {
			t.Fatalf("row %d: expected %s got %s", i, wantIDs[i], row.TransactionID)
		}
		if !row.Balance.Equal(d(wantBalances[i])) || !row.Balance.Equal(running) {
			t.Fatalf("row %d: expected balance %s got %s", i, wantBalances[i], row.Balance)
		}
	}
	if ledger.Accounts[0].Account != "Cash/Bank" || ledger.Accounts[len(ledger.Accounts)-1].Account != "Sales" {
		t.Fatalf("accounts not sorted by name: %+v", ledger.Accounts)
	}
}

func TestBuildTrialBalance(t *testing.T) {
	tb := BuildTrialBalance(BuildEntries(sampleTransactions()))
	if !tb.Balanced {
		t.Fatalf("expected balanced trial balance: %s vs %s", tb.TotalDebit, tb.TotalCredit)
	}
	if !tb.TotalDebit.Equal(d("13800")) {
		t.Fatalf("unexpected total debit: %s", tb.TotalDebit)
	}
	for i := 1; i < len(tb.Rows); i++ {
		if tb.Rows[i-1].Account > tb.Rows[i].Account {
			t.Fatalf("rows not sorted: %s > %s", tb.Rows[i-1].Account, tb.Rows[i].Account)
		}
	}
}

func TestBuildProfitAndLoss(t *testing.T) {
	pl := BuildProfitAndLoss(BuildEntries(sampleTransactions()))
	if !pl.Revenue.Total.Equal(d("1400")) {
		t.Fatalf("expected revenue 1400 got %s", pl.Revenue.Total)
	}
	if !pl.Expense.Total.Equal(d("300")) {
		t.Fatalf("expected expense 300 got %s", pl.Expense.Total)
	}
	if !pl.NetProfit.Equal(d("1100")) {
		t.Fatalf("expected net profit 1100 got %s", pl.NetProfit)
	}
}

func TestBuildBalanceSheet(t *testing.T) {
	bs := BuildBalanceSheet(BuildEntries(sampleTransactions()))
	if !bs.Balanced {
		t.Fatalf("expected balanced sheet: assets %s, L+E %s", bs.TotalAssets, bs.TotalLiabilitiesAndEquity)
	}
	// Cash/Bank 5800, Bank 700, Cash -700, receivables 400, inventory 1200, fixed 2500.
	if !bs.TotalAssets.Equal(d("9900")) {
		t.Fatalf("expected assets 9900 got %s", bs.TotalAssets)
	}
	if !bs.FixedAssets.Total.Equal(d("2500")) {
		t.Fatalf("expected fixed assets 2500 got %s", bs.FixedAssets.Total)
	}
	if !bs.CurrentLiabilities.Total.Equal(d("2500")) || !bs.LongTermLiabilities.Total.Equal(d("1500")) {
		t.Fatalf("unexpected liabilities %s / %s", bs.CurrentLiabilities.Total, bs.LongTermLiabilities.Total)
	}
	// 5000 capital - 200 drawings + 1100 net income
	if !bs.Equity.Total.Equal(d("5900")) {
		t.Fatalf("expected equity 5900 got %s", bs.Equity.Total)
	}
	last := bs.Equity.Accounts[len(bs.Equity.Accounts)-1]
	if last.Account != NetIncomeLabel {
		t.Fatalf("expected net income line, got %s", last.Account)
	}
}

func TestBuildCashFlow(t *testing.T) {
	cf := BuildCashFlow(BuildEntries(sampleTransactions()))
	// operating: +1000 sale, -1200 inventory, -300 rent
	if !cf.Operating.Net.Equal(d("-500")) {
		t.Fatalf("expected operating -500 got %s", cf.Operating.Net)
	}
	// credit asset purchase moves no cash
	if !cf.Investing.Net.IsZero() {
		t.Fatalf("expected investing 0 got %s", cf.Investing.Net)
	}
	// financing: +5000 capital, +2000 loan, -500 repayment, -200 drawings
	if !cf.Financing.Net.Equal(d("6300")) {
		t.Fatalf("expected financing 6300 got %s", cf.Financing.Net)
	}
	if !cf.NetChange.Equal(d("5800")) {
		t.Fatalf("expected net change 5800 got %s", cf.NetChange)
	}
}

func TestBuildGSTSummary(t *testing.T) {
	txs := []transactions.Transaction{
		{ID: "s1", Type: transactions.TypeSell, Amount: d("1000"), GSTApplicable: true, GSTRate: d("18")},
		{ID: "s0", Type: transactions.TypeSell, Amount: d("700"), GSTApplicable: true, GSTRate: d("0")},
		{ID: "s2", Type: transactions.TypeSell, Amount: d("500"), GSTApplicable: true, GSTType: "IGST", GSTRate: d("12")},
		{ID: "b1", Type: transactions.TypeBuy, Amount: d("200"), GSTApplicable: true, GSTRate: d("5")},
		{ID: "e1", Type: transactions.TypeExpenditure, Amount: d("100"), GSTApplicable: true, GSTRate: d("18")},
		{ID: "x", Type: transactions.TypeSell, Amount: d("999")},
		{ID: "l", Type: transactions.TypeLoan, Amount: d("999"), GSTApplicable: true},
	}
	g := BuildGSTSummary(txs)
	if !g.Output.Tax.Equal(d("240")) || !g.Output.CGST.Equal(d("90")) || !g.Output.SGST.Equal(d("90")) || !g.Output.IGST.Equal(d("60")) {
		t.Fatalf("unexpected output tax %+v", g.Output)
	}
	if len(g.Output.Lines) != 3 || !g.Output.Lines[1].Tax.IsZero() {
		t.Fatalf("expected a zero-rated output line, got %+v", g.Output.Lines)
	}
	if !g.Input.Tax.Equal(d("28")) || len(g.Input.Lines) != 2 {
		t.Fatalf("unexpected input tax %+v", g.Input)
	}
	if !g.NetPayable.Equal(d("212")) {
		t.Fatalf("expected net payable 212 got %s", g.NetPayable)
	}
}

func TestFilterApply(t *testing.T) {
	entries := BuildEntries(sampleTransactions())
	lo, hi := d("400"), d("1200")

	got := Filter{From: day1(3), To: time.Date(2024, 1, 4, 23, 0, 0, 0, time.UTC)}.Apply(entries)
	if len(got) != 6 {
		t.Fatalf("expected 6 entries in range, got %d", len(got))
	}
	got = Filter{MinAmount: &lo, MaxAmount: &hi}.Apply(entries)
	if len(got) != 10 {
		t.Fatalf("expected 10 entries in amount range, got %d", len(got))
	}
	got = Filter{AccountType: "current liabilities"}.Apply(entries)
	if len(got) != 1 || got[0].Account != "Accounts Payable" {
		t.Fatalf("unexpected group filter result %+v", got)
	}
	got = Filter{AccountType: "liability"}.Apply(entries)
	if len(got) != 3 {
		t.Fatalf("expected 3 liability entries, got %d", len(got))
	}
	got = Filter{Account: "cash"}.Apply(entries)
	for _, e := range got {
		if e.Account != "Cash/Bank" && e.Account != "Cash" {
			t.Fatalf("unexpected account %s", e.Account)
		}
	}
}
