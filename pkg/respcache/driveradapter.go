package respcache

import (
	"github.com/relaywork/modelbroker/pkg/authchain"
	"github.com/relaywork/modelbroker/pkg/clidriver"
)

func authVariant(s string) authchain.Variant { return authchain.Variant(s) }

// DriverCache adapts Cache to clidriver.Cache, translating between the
// driver's Result and the cache's own Entry so neither package imports
// the other's concrete type.
type DriverCache struct {
	cache *Cache
}

// NewDriverCache wraps cache for use as a clidriver.Cache.
func NewDriverCache(cache *Cache) *DriverCache {
	return &DriverCache{cache: cache}
}

func (d *DriverCache) Get(key string) (clidriver.Result, bool) {
	e, ok := d.cache.Get(key)
	if !ok {
		return clidriver.Result{}, false
	}
	return clidriver.Result{
		ResponseText: e.ResponseText,
		Model:        e.Model,
		AuthUsed:     authVariant(e.AuthUsed),
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
		SessionID:    e.SessionID,
	}, true
}

func (d *DriverCache) Set(key string, result clidriver.Result) {
	d.cache.Set(key, Entry{
		ResponseText: result.ResponseText,
		Model:        result.Model,
		AuthUsed:     string(result.AuthUsed),
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		SessionID:    result.SessionID,
	})
}
