package memory

import (
	"container/list"
	"context"
	"sync"
)

// Handle is a per-agent view over the manager, pre-bound to a tenant and
// agent scope. Handles carry no record state of their own; evicting one
// from the cache loses nothing, records live in Redis.
type Handle struct {
	manager  *Manager
	tenantID string
	agentID  string
}

// Remember appends a record in the agent's namespace, optionally narrowed
// by a context id.
func (h *Handle) Remember(ctx context.Context, contextID, role, content string, metadata map[string]string) (bool, error) {
	return h.manager.Remember(ctx, h.namespace(contextID), role, content, metadata)
}

// Recall ranks the agent's records against the query.
func (h *Handle) Recall(ctx context.Context, contextID, query string, limit int) ([]Record, error) {
	return h.manager.Recall(ctx, h.namespace(contextID), query, limit)
}

// RecentHistory returns the newest records first.
func (h *Handle) RecentHistory(ctx context.Context, contextID string, limit int) ([]Record, error) {
	return h.manager.RecentHistory(ctx, h.namespace(contextID), limit)
}

func (h *Handle) namespace(contextID string) Namespace {
	return Namespace{TenantID: h.tenantID, AgentID: h.agentID, ContextID: contextID}
}

// Cache hands out per-agent handles with a fixed-capacity LRU policy.
// The cap bounds live handles, not records; a re-created handle after
// eviction reads the same Redis namespace.
type Cache struct {
	manager  *Manager
	capacity int

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key    string
	handle *Handle
}

// NewCache creates a handle cache. Capacity must be positive.
func NewCache(manager *Manager, capacity int) *Cache {
	if manager == nil {
		panic("memory: manager cannot be nil")
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		manager:  manager,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// HandleFor returns the cached handle for the tenant/agent pair, creating
// one and evicting the least recently used handle when at capacity.
func (c *Cache) HandleFor(tenantID, agentID string) *Handle {
	key := tenantID + "/" + agentID

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).handle
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	handle := &Handle{manager: c.manager, tenantID: tenantID, agentID: agentID}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, handle: handle})
	return handle
}

// Len reports how many handles are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Remember implements the lifecycle service's memory dependency. The record
// is stored even when the write is degraded; the flag tells the caller the
// record lacks an embedding.
func (c *Cache) Remember(ctx context.Context, tenantID, agentID, contextID, role, content string) (bool, error) {
	return c.HandleFor(tenantID, agentID).Remember(ctx, contextID, role, content, nil)
}

// Recall implements the lifecycle service's memory dependency, flattening
// records to their contents.
func (c *Cache) Recall(ctx context.Context, tenantID, agentID, contextID, query string, depth int) ([]string, error) {
	records, err := c.HandleFor(tenantID, agentID).Recall(ctx, contextID, query, depth)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Content
	}
	return out, nil
}
