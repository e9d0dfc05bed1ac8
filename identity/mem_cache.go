package identity

import (
	"crypto/ecdsa"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemCache struct {
	keyCache *expirable.LRU[string, *ecdsa.PublicKey]
}

func NewMemCache(size int) *MemCache {
	keyCache := expirable.NewLRU[string, *ecdsa.PublicKey](size, nil, 5*time.Minute)

	return &MemCache{
		keyCache: keyCache,
	}
}

func (mc *MemCache) GetKey(did string) (*ecdsa.PublicKey, bool) {
	return mc.keyCache.Get(did)
}

func (mc *MemCache) PutKey(did string, pub *ecdsa.PublicKey) {
	mc.keyCache.Add(did, pub)
}

func (mc *MemCache) BustKey(did string) {
	mc.keyCache.Remove(did)
}
