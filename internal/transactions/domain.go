package transactions

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
)

// Type enumerates supported transaction kinds.
type Type string

const (
	// TypeBuy records a purchase of goods, assets or services.
	TypeBuy Type = "BUY"
	// TypeSell records a sale.
	TypeSell Type = "SELL"
	// TypeExpenditure records an operating expense.
	TypeExpenditure Type = "EXPENDITURE"
	// TypeCapitalDrawings records owner capital introduced or withdrawn.
	TypeCapitalDrawings Type = "CAPITAL_DRAWINGS"
	// TypeBank records transfers between cash and bank.
	TypeBank Type = "BANK"
	// TypeLoan records loans taken, given or repaid.
	TypeLoan Type = "LOAN"
)

// Sub types with dedicated accounting treatment.
const (
	SubTypeInventory  = "inventory"
	SubTypeAsset      = "asset"
	SubTypeDrawings   = "drawings"
	SubTypeCapital    = "capital"
	SubTypeDeposit    = "deposit"
	SubTypeWithdrawal = "withdrawal"
	SubTypeTaken      = "taken"
	SubTypeGiven      = "given"
	SubTypeRepayment  = "repayment"
)

// PaymentMethodCredit marks sales and purchases settled on account.
const PaymentMethodCredit = "credit"

// Transaction is a single financial event recorded by an owner.
type Transaction struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Date          time.Time       `json:"date"`
	Type          Type            `json:"type"`
	SubType       string          `json:"subType,omitempty"`
	Category      string          `json:"category,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"paymentMethod"`
	VendorName    string          `json:"vendorName,omitempty"`
	BuyerName     string          `json:"buyerName,omitempty"`
	GSTApplicable bool            `json:"gstApplicable"`
	GSTType       string          `json:"gstType,omitempty"`
	GSTRate       decimal.Decimal `json:"gstRate"`
	ProductName   string          `json:"productName,omitempty"`
	SKU           string          `json:"sku,omitempty"`
	Quantity      float64         `json:"quantity,omitempty"`
	Price         decimal.Decimal `json:"price"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// IsSubType compares the sub type case-insensitively.
func (t Transaction) IsSubType(sub string) bool {
	return strings.EqualFold(strings.TrimSpace(t.SubType), sub)
}

// OnCredit reports whether the transaction is settled on account.
func (t Transaction) OnCredit() bool {
	return strings.EqualFold(strings.TrimSpace(t.PaymentMethod), PaymentMethodCredit)
}

// Input carries the user supplied fields of a transaction. A nil GSTRate
// means DefaultGSTRate; an explicit zero marks a zero-rated supply.
type Input struct {
	Date          time.Time        `json:"date" validate:"required"`
	Type          Type             `json:"type" validate:"required,oneof=BUY SELL EXPENDITURE CAPITAL_DRAWINGS BANK LOAN"`
	SubType       string           `json:"subType" validate:"max=64"`
	Category      string           `json:"category" validate:"max=64"`
	Amount        decimal.Decimal  `json:"amount"`
	Description   string           `json:"description" validate:"max=1000"`
	PaymentMethod string           `json:"paymentMethod" validate:"max=32"`
	VendorName    string           `json:"vendorName" validate:"max=200"`
	BuyerName     string           `json:"buyerName" validate:"max=200"`
	GSTApplicable bool             `json:"gstApplicable"`
	GSTType       string           `json:"gstType" validate:"omitempty,oneof=IGST CGST_SGST igst cgst_sgst"`
	GSTRate       *decimal.Decimal `json:"gstRate"`
	ProductName   string           `json:"productName" validate:"max=200"`
	SKU           string           `json:"sku" validate:"max=64"`
	Quantity      float64          `json:"quantity" validate:"gte=0"`
	Price         decimal.Decimal  `json:"price"`
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	OwnerID string
	From    time.Time
	To      time.Time
	Type    Type
	Page    int
	PerPage int
}

// Page is a paginated listing.
type Page struct {
	Items   []Transaction `json:"items"`
	Page    int           `json:"page"`
	PerPage int           `json:"perPage"`
	Total   int           `json:"total"`
	Pages   int           `json:"pages"`
}

var hundred = decimal.NewFromInt(100)

// DefaultGSTRate applies when a transaction is stored without a rate.
var DefaultGSTRate = decimal.NewFromInt(18)

// ErrNotFound indicates a missing transaction.
var ErrNotFound = fmt.Errorf("transactions: transaction not found: %w", httpx.ErrNotFound)

// ErrInvalidAmount indicates a non positive amount.
var ErrInvalidAmount = fmt.Errorf("transactions: amount must be greater than zero: %w", httpx.ErrValidation)

// ErrInvalidPrice indicates a negative price.
var ErrInvalidPrice = fmt.Errorf("transactions: price must be >= 0: %w", httpx.ErrValidation)

// ErrInvalidGSTRate indicates a rate outside [0,100].
var ErrInvalidGSTRate = fmt.Errorf("transactions: gst rate must be between 0 and 100: %w", httpx.ErrValidation)
