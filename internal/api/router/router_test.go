package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/http/handlers"
	"github.com/innervoice/guide-ai-platform/internal/llm"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

const testSecret = "router-test-secret"

type memContracts struct{}

func (memContracts) Create(ctx context.Context, c *agent.Contract) error { return c.Validate() }
func (memContracts) Update(ctx context.Context, tenantID, agentID string, patch agent.Patch, reason string) (*agent.Contract, error) {
	return nil, agent.ErrNotFound
}
func (memContracts) Archive(ctx context.Context, tenantID, agentID string) error {
	return agent.ErrNotFound
}
func (memContracts) Get(ctx context.Context, tenantID, agentID string) (*agent.Contract, error) {
	return nil, agent.ErrNotFound
}
func (memContracts) ListVersions(ctx context.Context, tenantID, agentID string, limit int) ([]agent.ContractVersion, error) {
	return nil, agent.ErrNotFound
}
func (memContracts) RecordInteraction(ctx context.Context, tenantID, agentID string, at time.Time) error {
	return nil
}

type memThreads struct{}

func (memThreads) Create(ctx context.Context, tenantID, agentID, userID, title string) (*agent.Thread, error) {
	return &agent.Thread{ID: "thread-1", TenantID: tenantID, AgentID: agentID, Title: title}, nil
}
func (memThreads) Get(ctx context.Context, tenantID, threadID string) (*agent.Thread, error) {
	return nil, agent.ErrNotFound
}
func (memThreads) ListByAgent(ctx context.Context, tenantID, agentID string) ([]agent.Thread, error) {
	return nil, nil
}
func (memThreads) AppendMessage(ctx context.Context, threadID, role, content string, metadata map[string]string) (*agent.Message, error) {
	return &agent.Message{}, nil
}
func (memThreads) RecentMessages(ctx context.Context, threadID string, limit int) ([]agent.Message, error) {
	return nil, nil
}
func (memThreads) UpdateContextSummary(ctx context.Context, threadID, summary string) error {
	return nil
}

type echoClient struct{}

func (echoClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: "ok"}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.Default()
	svc := agent.NewService(memContracts{}, memThreads{}, nil, echoClient{}, nil, logger)
	cfg := &Config{
		Logger:          logger,
		Agents:          handlers.NewAgentsHandler(svc, logger),
		TenantJWTSecret: testSecret,
	}
	return New(cfg)
}

func signTestToken(t *testing.T, tenantID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": tenantID,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterAPIRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/agents/any-id", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestRouterAPIAcceptsToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/agents/any-id", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "tenant-a"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// Token is valid; the lookup itself 404s against the empty store.
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d (body %s)", rr.Code, rr.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}
