package integration

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/stockbooks/stockbooks/internal/inventory"
)

var (
	skuTimesPattern = regexp.MustCompile(`(?i)([a-z0-9][a-z0-9_-]*)\s*x\s*(\d+(?:\.\d+)?)`)
	skuQtyPattern   = regexp.MustCompile(`(?i)([a-z0-9][a-z0-9_-]*)\s+qty\s*:\s*(\d+(?:\.\d+)?)`)
	namedPattern    = regexp.MustCompile(`(?i)([\p{L}\p{N}][\p{L}\p{N}\s&.'/-]*?)\s*\(\s*(\d+(?:\.\d+)?)\s*units?\s*\)`)
)

// MatchSource records which rule located an item.
type MatchSource string

const (
	MatchBySKUPattern  MatchSource = "sku_pattern"
	MatchByNamePattern MatchSource = "name_pattern"
	MatchByFallback    MatchSource = "fallback"
)

// Match is an item located in a transaction together with the quantity it
// moves. Quantities of repeated mentions are summed.
type Match struct {
	Item     inventory.Item
	Quantity float64
	Source   MatchSource
}

// ParseHints carries transaction fields used by the fallback rule.
type ParseHints struct {
	SKU         string
	ProductName string
	Quantity    float64
}

// Parse locates the items a description refers to. Rules run in order and
// the first one producing matches wins: "SKU x<qty>" and "SKU qty:<n>",
// then "name (n units)", then a whole-description name or SKU lookup.
func Parse(description string, items []inventory.Item, hints ParseHints) []Match {
	if len(items) == 0 {
		return nil
	}
	idx := newItemIndex(items)
	if matches := idx.skuPatterns(description); len(matches) > 0 {
		return matches
	}
	if matches := idx.namePatterns(description); len(matches) > 0 {
		return matches
	}
	return idx.fallback(description, hints)
}

type itemIndex struct {
	items []inventory.Item
	bySKU map[string]int
	names []string
}

func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

func newItemIndex(items []inventory.Item) *itemIndex {
	idx := &itemIndex{items: items, bySKU: make(map[string]int, len(items)), names: make([]string, len(items))}
	for i, item := range items {
		if item.SKU != "" {
			idx.bySKU[fold(item.SKU)] = i
		}
		idx.names[i] = fold(item.Name)
	}
	return idx
}

type collector struct {
	order  []int
	qty    map[int]float64
	source MatchSource
}

func newCollector(source MatchSource) *collector {
	return &collector{qty: map[int]float64{}, source: source}
}

func (c *collector) add(i int, qty float64) {
	if qty <= 0 {
		return
	}
	if _, seen := c.qty[i]; !seen {
		c.order = append(c.order, i)
	}
	c.qty[i] += qty
}

func (c *collector) matches(items []inventory.Item) []Match {
	if len(c.order) == 0 {
		return nil
	}
	out := make([]Match, 0, len(c.order))
	for _, i := range c.order {
		out = append(out, Match{Item: items[i], Quantity: c.qty[i], Source: c.source})
	}
	return out
}

func (idx *itemIndex) skuPatterns(description string) []Match {
	c := newCollector(MatchBySKUPattern)
	for _, re := range []*regexp.Regexp{skuTimesPattern, skuQtyPattern} {
		for _, m := range re.FindAllStringSubmatch(description, -1) {
			i, ok := idx.bySKU[fold(m[1])]
			if !ok {
				continue
			}
			c.add(i, parseQty(m[2]))
		}
	}
	return c.matches(idx.items)
}

// namePatterns matches "name (n units)". The captured text may carry leading
// words ("Sold Blue Widget"), so the longest item name that ends it wins.
func (idx *itemIndex) namePatterns(description string) []Match {
	c := newCollector(MatchByNamePattern)
	for _, m := range namedPattern.FindAllStringSubmatch(description, -1) {
		phrase := fold(m[1])
		best, bestLen := -1, 0
		for i, name := range idx.names {
			if name == "" || len(name) <= bestLen {
				continue
			}
			if phrase == name || strings.HasSuffix(phrase, " "+name) {
				best, bestLen = i, len(name)
			}
		}
		if best >= 0 {
			c.add(best, parseQty(m[2]))
		}
	}
	return c.matches(idx.items)
}

// fallback returns the first item whose name equals the description or the
// product name, or whose SKU equals the transaction SKU or appears in the
// description.
func (idx *itemIndex) fallback(description string, hints ParseHints) []Match {
	qty := hints.Quantity
	if qty <= 0 {
		qty = 1
	}
	desc := fold(description)
	if sku := fold(hints.SKU); sku != "" {
		if i, ok := idx.bySKU[sku]; ok {
			return []Match{{Item: idx.items[i], Quantity: qty, Source: MatchByFallback}}
		}
	}
	product := fold(hints.ProductName)
	for i, item := range idx.items {
		name := idx.names[i]
		sku := fold(item.SKU)
		switch {
		case name != "" && (name == desc || name == product),
			sku != "" && desc != "" && strings.Contains(desc, sku):
			return []Match{{Item: item, Quantity: qty, Source: MatchByFallback}}
		}
	}
	return nil
}

func parseQty(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
