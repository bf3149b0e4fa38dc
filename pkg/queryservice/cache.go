// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package queryservice

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// queryCache memoizes operation results keyed by a normalized query
// string. It never hides errors: only successful results are cached.
type queryCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, any]
}

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, any](size)
	if err != nil {
		// Only returns an error for size <= 0, already guarded above.
		c, _ = lru.New[string, any](512)
	}
	return &queryCache{cache: c}
}

func (c *queryCache) get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(key)
}

func (c *queryCache) put(key string, value any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, value)
}

// cacheKey builds a deterministic key from an operation name and its
// normalized arguments.
func cacheKey(op string, parts ...string) string {
	var b strings.Builder
	b.WriteString(op)
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(strings.TrimSpace(p)))
	}
	return b.String()
}
