package analysis

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"recompiler/internal/elfx"
)

// ErrNoFunctionSymbols is returned when the symbol table holds no
// function-typed entries.
var ErrNoFunctionSymbols = errors.New("no function symbols")

// AddrSym pairs a symbol with its address. The sentinel entry has a nil Sym.
type AddrSym struct {
	Addr uint64
	Sym  *elfx.Symbol
}

// SymbolIndex splits function symbols into addressed ones, sorted ascending
// with a trailing sentinel, and externally defined ones in table order.
type SymbolIndex struct {
	Addressed []AddrSym
	External  []elfx.Symbol
}

// BuildIndex builds a SymbolIndex from function symbols. Non-function entries
// are ignored. Symbols sharing an address keep their symbol-table order.
func BuildIndex(syms []elfx.Symbol) (*SymbolIndex, error) {
	idx := &SymbolIndex{}
	for i := range syms {
		s := syms[i]
		if !s.IsFunc() {
			continue
		}
		if s.IsExternal() {
			idx.External = append(idx.External, s)
			continue
		}
		idx.Addressed = append(idx.Addressed, AddrSym{Addr: s.Addr, Sym: &s})
	}
	if len(idx.Addressed) == 0 && len(idx.External) == 0 {
		return nil, ErrNoFunctionSymbols
	}

	slices.SortStableFunc(idx.Addressed, func(a, b AddrSym) int {
		return cmp.Compare(a.Addr, b.Addr)
	})
	idx.Addressed = append(idx.Addressed, AddrSym{Addr: sentinelAddr})
	return idx, nil
}

// Take removes the symbol named name from the index and returns it. When
// several match, the lowest-addressed one is taken, falling back to the first
// externally defined one.
func (idx *SymbolIndex) Take(name string) (elfx.Symbol, bool) {
	if i := slices.IndexFunc(idx.Addressed, func(a AddrSym) bool {
		return a.Sym != nil && a.Sym.Name == name
	}); i >= 0 {
		s := *idx.Addressed[i].Sym
		idx.Addressed = slices.Delete(idx.Addressed, i, i+1)
		return s, true
	}
	if i := slices.IndexFunc(idx.External, func(s elfx.Symbol) bool {
		return s.Name == name
	}); i >= 0 {
		s := idx.External[i]
		idx.External = slices.Delete(idx.External, i, i+1)
		return s, true
	}
	return elfx.Symbol{}, false
}

// Len returns the number of symbols in the index, excluding the sentinel.
func (idx *SymbolIndex) Len() int {
	return len(idx.Addressed) - 1 + len(idx.External)
}

func (idx *SymbolIndex) String() string {
	return fmt.Sprintf("%d addressed, %d external", len(idx.Addressed)-1, len(idx.External))
}

// demangleCache memoises demangled names. Recovery itself is single-threaded;
// the lock covers the TUI, which renders from its own goroutine.
type demangleCache struct {
	mu      sync.RWMutex
	names   map[string]string
	hits    int
	enabled bool
}

var cache = &demangleCache{
	names:   make(map[string]string),
	enabled: true,
}

// CachedDemangle returns the demangled form of a C++ or Rust symbol name, or
// the name itself when it is not mangled.
func CachedDemangle(mangled string) string {
	cache.mu.RLock()
	if !cache.enabled {
		cache.mu.RUnlock()
		return demangle.Filter(mangled, demangle.NoClones)
	}
	if d, ok := cache.names[mangled]; ok {
		cache.mu.RUnlock()
		cache.mu.Lock()
		cache.hits++
		cache.mu.Unlock()
		return d
	}
	cache.mu.RUnlock()

	d := demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	cache.names[mangled] = d
	cache.mu.Unlock()
	return d
}

// SetDemangleCache turns memoisation on or off.
func SetDemangleCache(enabled bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.enabled = enabled
}

// DemangleCacheStats returns the number of cached names and cache hits.
func DemangleCacheStats() (names, hits int) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return len(cache.names), cache.hits
}
