// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"os"
	"sync"
	"time"
)

// Cache remembers listing results per binary in a thread-safe way.
// A rebuilt binary (different modification time or size) is listed again.
type Cache struct {
	Lister Lister
	mu     sync.RWMutex
	cache  map[cacheKey]cacheVal
}

type cacheKey struct {
	bin   string
	mtime time.Time
	size  int64
}

type cacheVal struct {
	names []string
	err   error
}

func (c *Cache) IterSymbols(bin string) ([]string, error) {
	st, err := os.Stat(bin)
	if err != nil {
		return nil, err
	}
	key := cacheKey{bin, st.ModTime(), st.Size()}
	c.mu.RLock()
	val, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return val.names, val.err
	}
	names, err := c.Lister.IterSymbols(bin)
	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[cacheKey]cacheVal)
	}
	c.cache[key] = cacheVal{names, err}
	c.mu.Unlock()
	return names, err
}
