package rbac

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// checkCache memoizes permission check results in-process. Every write
// through the engine bumps the generation, which makes all earlier
// entries unreachable; the TTL additionally bounds staleness for
// multi-process deployments where another writer shares the database.
type checkCache struct {
	lru *expirable.LRU[string, bool]
	gen atomic.Uint64
}

func newCheckCache(size int, ttl time.Duration) (*checkCache, error) {
	if size <= 0 {
		return nil, NewConfigError("check cache size must be positive, got %d", size)
	}
	return &checkCache{lru: expirable.NewLRU[string, bool](size, nil, ttl)}, nil
}

func (c *checkCache) key(actor Actor, obj Resource, codename string) string {
	var actorKey string
	switch a := actor.(type) {
	case User:
		actorKey = fmt.Sprintf("u:%d", a.ID)
	case Team:
		actorKey = fmt.Sprintf("t:%d", a.ID)
	}
	return fmt.Sprintf("%d|%s|%s|%s", c.gen.Load(), actorKey, obj.String(), codename)
}

func (c *checkCache) get(actor Actor, obj Resource, codename string) (bool, bool) {
	if c == nil {
		return false, false
	}
	return c.lru.Get(c.key(actor, obj, codename))
}

func (c *checkCache) put(actor Actor, obj Resource, codename string, allowed bool) {
	if c == nil {
		return
	}
	c.lru.Add(c.key(actor, obj, codename), allowed)
}

// bump invalidates every cached entry.
func (c *checkCache) bump() {
	if c == nil {
		return
	}
	c.gen.Add(1)
}
