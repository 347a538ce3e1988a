// Package market holds the shared read-mostly market state: the symbol
// registry built from exchange metadata and the live top-of-book price cache.
package market

import (
	"sort"
	"sync/atomic"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// Registry is the symbol registry. It is empty until Load is called and is
// replaced wholesale, never mutated in place.
type Registry struct {
	snap atomic.Pointer[RegistrySnapshot]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Load installs the given symbols as the registry contents.
func (r *Registry) Load(symbols []domain.SymbolInfo) {
	r.snap.Store(newRegistrySnapshot(symbols))
}

// Ready reports whether the registry has been populated with at least one pair.
func (r *Registry) Ready() bool {
	s := r.snap.Load()
	return s != nil && len(s.symbols) > 0
}

// Len returns the number of registered pairs.
func (r *Registry) Len() int {
	s := r.snap.Load()
	if s == nil {
		return 0
	}
	return len(s.symbols)
}

// Snapshot returns the current immutable registry view, or nil before Load.
func (r *Registry) Snapshot() *RegistrySnapshot {
	return r.snap.Load()
}

// Assets returns the base and quote asset of symbol.
func (r *Registry) Assets(symbol string) (base, quote string, ok bool) {
	s := r.snap.Load()
	if s == nil {
		return "", "", false
	}
	info, ok := s.symbols[symbol]
	return info.Base, info.Quote, ok
}

// RegistrySnapshot is an immutable view of the symbol registry with a
// base→quote→symbol index for direction lookups.
type RegistrySnapshot struct {
	symbols    map[string]domain.SymbolInfo
	pairs      map[string]map[string]string
	currencies []string
}

func newRegistrySnapshot(symbols []domain.SymbolInfo) *RegistrySnapshot {
	s := &RegistrySnapshot{
		symbols: make(map[string]domain.SymbolInfo, len(symbols)),
		pairs:   make(map[string]map[string]string),
	}
	seen := make(map[string]struct{})
	for _, info := range symbols {
		s.symbols[info.Symbol] = info
		quotes, ok := s.pairs[info.Base]
		if !ok {
			quotes = make(map[string]string)
			s.pairs[info.Base] = quotes
		}
		quotes[info.Quote] = info.Symbol
		seen[info.Base] = struct{}{}
		seen[info.Quote] = struct{}{}
	}
	s.currencies = make([]string, 0, len(seen))
	for c := range seen {
		s.currencies = append(s.currencies, c)
	}
	sort.Strings(s.currencies)
	return s
}

// Symbol returns the trading rules for a pair.
func (s *RegistrySnapshot) Symbol(symbol string) (domain.SymbolInfo, bool) {
	info, ok := s.symbols[symbol]
	return info, ok
}

// Pair returns the symbol whose base is base and quote is quote.
func (s *RegistrySnapshot) Pair(base, quote string) (string, bool) {
	sym, ok := s.pairs[base][quote]
	return sym, ok
}

// Symbols returns every registered pair in symbol order.
func (s *RegistrySnapshot) Symbols() []domain.SymbolInfo {
	out := make([]domain.SymbolInfo, 0, len(s.symbols))
	for _, info := range s.symbols {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Currencies returns every currency appearing in at least one pair, sorted.
func (s *RegistrySnapshot) Currencies() []string {
	return s.currencies
}

// Len returns the number of pairs in the snapshot.
func (s *RegistrySnapshot) Len() int {
	return len(s.symbols)
}
