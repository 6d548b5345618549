package app

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// PendingUploads tracks upload targets handed out but not yet confirmed by a
// metadata save. Entries expire together with the write URL they belong to.
type PendingUploads struct {
	entries *cache.Cache
}

func NewPendingUploads() *PendingUploads {
	return &PendingUploads{entries: cache.New(DefaultWriteTTL, 10*time.Minute)}
}

// Track records key as issued to owner.
func (p *PendingUploads) Track(key, owner string, ttl time.Duration) {
	p.entries.Set(key, owner, ttl)
}

// Owner returns who key was issued to while it is still pending.
func (p *PendingUploads) Owner(key string) (string, bool) {
	owner, ok := p.entries.Get(key)
	if !ok {
		return "", false
	}
	return owner.(string), true
}

// Confirm removes key and returns the owner it was issued to, if it was pending.
func (p *PendingUploads) Confirm(key string) (string, bool) {
	owner, ok := p.entries.Get(key)
	if !ok {
		return "", false
	}
	p.entries.Delete(key)
	return owner.(string), true
}

func (p *PendingUploads) Len() int {
	return p.entries.ItemCount()
}
