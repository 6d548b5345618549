package repository

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// RevokedTokens is an in-memory list of signed-out token ids. Entries expire
// with the token, so the list never outgrows the set of live tokens.
type RevokedTokens struct {
	table *cache.Cache
}

func NewRevokedTokens() *RevokedTokens {
	return &RevokedTokens{table: cache.New(time.Hour, 10*time.Minute)}
}

func (r *RevokedTokens) Revoke(tokenID string, ttl time.Duration) {
	if tokenID == "" {
		return
	}
	r.table.Set(tokenID, struct{}{}, ttl)
}

func (r *RevokedTokens) IsRevoked(tokenID string) bool {
	_, ok := r.table.Get(tokenID)
	return ok
}
