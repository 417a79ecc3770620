package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbooks/stockbooks/internal/inventory"
)

func parserItems() []inventory.Item {
	return []inventory.Item{
		{ID: "1", Name: "Widget", SKU: "WID-000001"},
		{ID: "2", Name: "Blue Widget", SKU: "BLU-000002"},
		{ID: "3", Name: "Gadget", SKU: "GAD-000003"},
	}
}

func TestParseSKUPatternsWin(t *testing.T) {
	matches := Parse("BLU-000002 x 3 plus Gadget (4 units)", parserItems(), ParseHints{})
	require.Len(t, matches, 1)
	require.Equal(t, "2", matches[0].Item.ID)
	require.InDelta(t, 3.0, matches[0].Quantity, 0.0001)
	require.Equal(t, MatchBySKUPattern, matches[0].Source)
}

func TestParseIgnoresUnknownSKUs(t *testing.T) {
	matches := Parse("BOX x2 and Gadget (4 units)", parserItems(), ParseHints{})
	require.Len(t, matches, 1)
	require.Equal(t, "3", matches[0].Item.ID)
	require.Equal(t, MatchByNamePattern, matches[0].Source)
}

func TestParseNamePatternPrefersLongestName(t *testing.T) {
	matches := Parse("Sold 2 pallets: Blue Widget (5 units), widget (1 unit)", parserItems(), ParseHints{})
	require.Len(t, matches, 2)
	require.Equal(t, "2", matches[0].Item.ID)
	require.InDelta(t, 5.0, matches[0].Quantity, 0.0001)
	require.Equal(t, "1", matches[1].Item.ID)
	require.InDelta(t, 1.0, matches[1].Quantity, 0.0001)
}

func TestParseFallback(t *testing.T) {
	items := parserItems()

	matches := Parse("  GADGET ", items, ParseHints{})
	require.Len(t, matches, 1)
	require.Equal(t, "3", matches[0].Item.ID)
	require.InDelta(t, 1.0, matches[0].Quantity, 0.0001)

	matches = Parse("invoice 42 for wid-000001", items, ParseHints{Quantity: 7})
	require.Len(t, matches, 1)
	require.Equal(t, "1", matches[0].Item.ID)
	require.InDelta(t, 7.0, matches[0].Quantity, 0.0001)

	matches = Parse("counter sale", items, ParseHints{SKU: "gad-000003", Quantity: 2})
	require.Len(t, matches, 1)
	require.Equal(t, "3", matches[0].Item.ID)

	matches = Parse("counter sale", items, ParseHints{ProductName: "blue widget"})
	require.Len(t, matches, 1)
	require.Equal(t, "2", matches[0].Item.ID)

	require.Empty(t, Parse("consulting", items, ParseHints{}))
	require.Empty(t, Parse("WID-000001 x2", nil, ParseHints{}))
}

func TestGenerateSKU(t *testing.T) {
	now := time.UnixMilli(1_700_000_123_456)
	require.Equal(t, "WID-123456", GenerateSKU("Widget", now))
	require.Equal(t, "A1B-123456", GenerateSKU("a-1 bolt", now))
	require.Equal(t, "ITM-123456", GenerateSKU("***", now))
	require.Equal(t, "OK-000007", GenerateSKU("ok", time.UnixMilli(7)))
}

func TestStockHeuristics(t *testing.T) {
	require.InDelta(t, 5.0, minimumStock(50), 0.0001)
	require.InDelta(t, 1.0, minimumStock(3), 0.0001)
	require.InDelta(t, 250.0, maximumStock(50), 0.0001)
}
