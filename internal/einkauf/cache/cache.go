// Package cache holds the memoized full-table read of purchase records.
//
// Readers tolerate staleness up to the configured TTL; every write path
// must call Invalidate right after committing so the next read refills
// from the store.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
)

const recordsKey = "purchase_records:all"

// Records is the injectable record cache. The zero value is not usable;
// construct with NewRecords.
type Records struct {
	store *gocache.Cache
	ttl   time.Duration
}

// NewRecords creates a record cache with the given TTL. A non-positive
// TTL disables expiry (entries live until invalidated).
func NewRecords(ttl time.Duration) *Records {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Records{
		store: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Get returns the cached record set, or ok=false when the cache is cold
// or expired.
func (r *Records) Get() ([]entity.PurchaseRecord, bool) {
	v, ok := r.store.Get(recordsKey)
	if !ok {
		return nil, false
	}
	records, ok := v.([]entity.PurchaseRecord)
	return records, ok
}

// Put stores the full record set.
func (r *Records) Put(records []entity.PurchaseRecord) {
	r.store.Set(recordsKey, records, r.ttl)
}

// Invalidate drops the cached record set. Called synchronously after
// every insert, update, delete, and import.
func (r *Records) Invalidate() {
	r.store.Flush()
}

// TTL reports the configured time-to-live.
func (r *Records) TTL() time.Duration {
	return r.ttl
}
