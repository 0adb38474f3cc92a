package config

import (
	"os"
	"strings"
)

// StrictMissingPrices makes recalculation fail when an ingredient has no
// resolvable price instead of silently costing it at zero. The zero-cost
// behavior is what production data was entered against, so the strict mode
// stays opt-in.
//
// Set via env:
// - STRICT_MISSING_PRICES=true
func StrictMissingPrices() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_MISSING_PRICES")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
