package market

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// SelectRelevant keeps the pairs whose base and quote are both relevant. A
// currency is relevant if it is a starting asset or is paired directly with one.
func SelectRelevant(symbols []domain.SymbolInfo, startingAssets []string) []domain.SymbolInfo {
	relevant := make(map[string]bool, len(startingAssets))
	starting := make(map[string]bool, len(startingAssets))
	for _, a := range startingAssets {
		relevant[a] = true
		starting[a] = true
	}
	for _, s := range symbols {
		if starting[s.Quote] {
			relevant[s.Base] = true
		}
		if starting[s.Base] {
			relevant[s.Quote] = true
		}
	}

	out := make([]domain.SymbolInfo, 0, len(symbols))
	for _, s := range symbols {
		if relevant[s.Base] && relevant[s.Quote] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// StreamNames returns the lowercase book-ticker stream names for the symbols.
func StreamNames(symbols []domain.SymbolInfo) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, strings.ToLower(s.Symbol)+"@bookTicker")
	}
	return out
}
