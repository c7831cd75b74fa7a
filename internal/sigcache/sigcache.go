// Package sigcache remembers thought signatures across turns. Providers
// that validate signatures accept replayed ones; the cache lets a follow-up
// request reuse the signature the model attached to the original tool call
// instead of the skip marker.
package sigcache

import (
	"sync"
	"time"
)

const (
	// minSignatureLength filters out placeholder values; real signatures
	// are long opaque blobs.
	minSignatureLength = 50

	entryTTL = 2 * time.Hour

	toolCap    = 500
	familyCap  = 200
	sessionCap = 1000
)

type entry struct {
	value   string
	created time.Time
}

type table struct {
	m   map[string]entry
	cap int
}

func newTable(cap int) *table {
	return &table{m: map[string]entry{}, cap: cap}
}

func (t *table) put(key, value string, now time.Time) {
	if key == "" || value == "" {
		return
	}
	t.gc(now)
	if len(t.m) >= t.cap {
		t.evictOldest()
	}
	t.m[key] = entry{value: value, created: now}
}

func (t *table) get(key string, now time.Time) (string, bool) {
	e, ok := t.m[key]
	if !ok || now.Sub(e.created) > entryTTL {
		delete(t.m, key)
		return "", false
	}
	return e.value, true
}

func (t *table) gc(now time.Time) {
	for k, e := range t.m {
		if now.Sub(e.created) > entryTTL {
			delete(t.m, k)
		}
	}
}

func (t *table) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range t.m {
		if oldestKey == "" || e.created.Before(oldest) {
			oldestKey = k
			oldest = e.created
		}
	}
	if oldestKey != "" {
		delete(t.m, oldestKey)
	}
}

// Cache holds the three signature maps: tool-call id to signature,
// signature to model family, and session id to signature.
type Cache struct {
	mu      sync.Mutex
	tool    *table
	family  *table
	session *table
}

// New builds an empty cache.
func New() *Cache {
	return &Cache{
		tool:    newTable(toolCap),
		family:  newTable(familyCap),
		session: newTable(sessionCap),
	}
}

// PutTool records the signature attached to a tool call.
func (c *Cache) PutTool(toolID, sig string) {
	if len(sig) < minSignatureLength {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tool.put(toolID, sig, time.Now())
}

// Tool returns the signature for a tool call id.
func (c *Cache) Tool(toolID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool.get(toolID, time.Now())
}

// PutFamily records which model family produced a signature.
func (c *Cache) PutFamily(sig, family string) {
	if len(sig) < minSignatureLength {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.family.put(sig, family, time.Now())
}

// Family returns the model family a signature belongs to.
func (c *Cache) Family(sig string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.family.get(sig, time.Now())
}

// PutSession records the latest signature seen for a session.
func (c *Cache) PutSession(sessionID, sig string) {
	if len(sig) < minSignatureLength {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.put(sessionID, sig, time.Now())
}

// Session returns the latest signature for a session.
func (c *Cache) Session(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.get(sessionID, time.Now())
}
