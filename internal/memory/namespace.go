package memory

import (
	"fmt"
	"strings"
)

// Namespace identifies one isolation scope for memory records. Records are
// visible only inside their exact namespace: tenant plus agent, optionally
// narrowed further by a context id (a thread, a pipeline run). A record
// written at tenant:agent:context is not visible at tenant:agent and vice
// versa.
type Namespace struct {
	TenantID  string
	AgentID   string
	ContextID string
}

// Validate rejects namespaces missing a tenant or agent scope.
func (n Namespace) Validate() error {
	if strings.TrimSpace(n.TenantID) == "" {
		return fmt.Errorf("memory: namespace tenant id is required")
	}
	if strings.TrimSpace(n.AgentID) == "" {
		return fmt.Errorf("memory: namespace agent id is required")
	}
	return nil
}

// Key returns the Redis key for the namespace's record list.
func (n Namespace) Key() string {
	if n.ContextID == "" {
		return fmt.Sprintf("memory:%s:%s", n.TenantID, n.AgentID)
	}
	return fmt.Sprintf("memory:%s:%s:%s", n.TenantID, n.AgentID, n.ContextID)
}

func (n Namespace) String() string { return n.Key() }
