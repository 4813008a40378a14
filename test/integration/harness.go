// Package integration provides a reusable test harness for end-to-end
// testing of the flowd server. It starts a full HTTP stack with in-memory
// stores, seeded definitions, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/formgrid/flowd/internal/access"
	"github.com/formgrid/flowd/internal/config"
	"github.com/formgrid/flowd/internal/definition"
	"github.com/formgrid/flowd/internal/observability"
	"github.com/formgrid/flowd/internal/transport"
	"github.com/formgrid/flowd/internal/workflow"
)

// TestHarness encapsulates a fully wired flowd instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Definitions *definition.MemoryStore
	Instances   *workflow.MemoryStore
	Engine      *workflow.Engine

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	policyFile     string
	handlerTimeout time.Duration
	casRetries     int
	taskCacheTTL   time.Duration
}

// WithDefinitions sets the definition directories to seed from. Relative
// paths are resolved from the testdata directory.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithTaskCacheTTL sets the MyTasks cache TTL.
func WithTaskCacheTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.taskCacheTTL = d
	}
}

// NewTestHarness creates and starts a full flowd test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		casRetries:     3,
	}
	for _, opt := range opts {
		opt(hc)
	}

	dataDir := testdataDir()
	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{filepath.Join(dataDir, "definitions")}
	}
	if hc.policyFile == "" {
		hc.policyFile = filepath.Join(dataDir, "policies.yaml")
	}

	h := &TestHarness{t: t}
	logger := zap.NewNop()

	h.Definitions = definition.NewMemoryStore()
	h.Instances = workflow.NewMemoryStore()

	validator := definition.NewValidator()
	loader := definition.NewLoader(validator, logger)
	seeds, err := loader.LoadAll(hc.definitionDirs)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if err := loader.Seed(context.Background(), h.Definitions, seeds); err != nil {
		t.Fatalf("seed definitions: %v", err)
	}

	evaluator, err := access.NewStaticPolicyEvaluator(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	resolver := access.NewResolver(evaluator, 0) // no caching in tests

	h.Engine = workflow.NewEngine(h.Definitions, h.Instances, resolver, logger, workflow.Options{
		CASRetries:   hc.casRetries,
		TaskCacheTTL: hc.taskCacheTTL,
	})

	h.issuer = newTokenIssuer(t)

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	h.cfg.Observability.Metrics.Enabled = false

	router := transport.NewRouter(transport.Dependencies{
		Config:      h.cfg,
		Logger:      logger,
		Engine:      h.Engine,
		Definitions: h.Definitions,
		Validator:   validator,
		Access:      resolver,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return h.Definitions.Len() > 0 },
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// ErrorCode extracts the error code from an error response body.
func (h *TestHarness) ErrorCode(resp *http.Response) string {
	h.t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	h.ParseJSON(resp, &body)
	return body.Error.Code
}

// --- Default test claims ---

// EmployeeClaims returns TestClaims for an employee who files expenses.
func EmployeeClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-employee",
		DomainID:  "acme-corp",
		Email:     "employee@acme.example.com",
		Roles:     []string{"employee"},
	}
}

// ManagerClaims returns TestClaims for an expense manager.
func ManagerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-manager",
		DomainID:  "acme-corp",
		Email:     "manager@acme.example.com",
		Roles:     []string{"expense_manager"},
	}
}

// DesignerClaims returns TestClaims for a workflow designer.
func DesignerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-designer",
		DomainID:  "acme-corp",
		Email:     "designer@acme.example.com",
		Roles:     []string{"workflow_designer"},
	}
}

// AdminClaims returns TestClaims for a domain administrator.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-admin",
		DomainID:  "acme-corp",
		Email:     "admin@acme.example.com",
		Roles:     []string{"domain_admin"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
