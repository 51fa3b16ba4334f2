package views

import (
	"slices"
	"sync"
)

// ViewedProductsKey is the session key holding the products already counted
// for the visitor.
const ViewedProductsKey = "viewtracker_viewed_products"

// SessionStore is the per-visitor key/value storage the guard keeps its
// viewed set in. *session.Session from fiber satisfies it.
type SessionStore interface {
	Get(key string) interface{}
	Set(key string, value interface{})
}

// MemorySession is a SessionStore kept in process memory, used when the
// caller has no HTTP session at hand.
type MemorySession struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func NewMemorySession() *MemorySession {
	return &MemorySession{data: make(map[string]interface{})}
}

func (s *MemorySession) Get(key string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

func (s *MemorySession) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// ViewedProducts returns the viewed set stored in sess. Values of an
// unexpected shape are treated as an empty set.
func ViewedProducts(sess SessionStore) []uint {
	if sess == nil {
		return nil
	}

	switch v := sess.Get(ViewedProductsKey).(type) {
	case []uint:
		return v
	case []int:
		ids := make([]uint, 0, len(v))
		for _, id := range v {
			if id > 0 {
				ids = append(ids, uint(id))
			}
		}
		return ids
	default:
		return nil
	}
}

// Guard suppresses repeat counting of the same product within one visitor
// session.
type Guard struct {
	enabled bool
}

// NewGuard returns a guard; a disabled guard lets every view through but
// still records what was counted.
func NewGuard(duplicateProtection bool) *Guard {
	return &Guard{enabled: duplicateProtection}
}

// ShouldCount reports whether a view of productID must be counted. A nil
// session disables de-duplication.
func (g *Guard) ShouldCount(sess SessionStore, productID uint) bool {
	if !g.enabled || sess == nil {
		return true
	}
	return !slices.Contains(ViewedProducts(sess), productID)
}

// MarkCounted adds productID to the viewed set. Adding a product twice is a no-op.
func (g *Guard) MarkCounted(sess SessionStore, productID uint) {
	if sess == nil {
		return
	}

	viewed := ViewedProducts(sess)
	if slices.Contains(viewed, productID) {
		return
	}
	sess.Set(ViewedProductsKey, append(slices.Clone(viewed), productID))
}
