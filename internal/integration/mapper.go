package integration

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// GenerateSKU builds an item code from the first three alphanumeric
// characters of name and a six digit time suffix, e.g. WID-482913.
func GenerateSKU(name string, now time.Time) string {
	var prefix strings.Builder
	for _, r := range name {
		if prefix.Len() == 3 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			prefix.WriteRune(r)
		}
	}
	code := strings.ToUpper(prefix.String())
	if code == "" {
		code = "ITM"
	}
	return fmt.Sprintf("%s-%06d", code, now.UnixMilli()%1_000_000)
}

// minimumStock is a tenth of the opening quantity, never below one.
func minimumStock(qty float64) float64 {
	return math.Max(1, math.Floor(qty*0.1))
}

func maximumStock(qty float64) float64 {
	return round2(qty * 5)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
