// Package testutil provides testing utilities for the MonieWatch upstream API.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Token is the bearer token the mock issues on successful authentication.
const Token = "test-access-token"

// MockAPI is a configurable mock of the upstream fintech API.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCount int
	authCount    int
	pageRequests map[string][]int
	lastAuth     http.Header
}

// NewMockAPI creates a mock API. The auth endpoint succeeds by default;
// every other path 404s until a handler is set.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:     make(map[string]http.HandlerFunc),
		pageRequests: make(map[string][]int),
	}
	mock.SetHandler("/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AuthOK(Token))
	})

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		if r.URL.Path == "/auth/tokens" {
			mock.authCount++
			mock.lastAuth = r.Header.Clone()
		}
		if page, err := strconv.Atoi(r.URL.Query().Get("pageNumber")); err == nil {
			mock.pageRequests[r.URL.Path] = append(mock.pageRequests[r.URL.Path], page)
		}
		handler, ok := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed status/body response for a path.
func (m *MockAPI) SetResponse(path string, status int, body string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

// SetPaginated serves one canned body per page number. Pages listed in
// failures return 500 that many times before succeeding; use a large count
// to make a page fail permanently.
func (m *MockAPI) SetPaginated(path string, pages map[int]string, failures map[int]int) {
	var mu sync.Mutex
	remaining := make(map[int]int, len(failures))
	for page, n := range failures {
		remaining[page] = n
	}

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("pageNumber"))
		if err != nil {
			page = 1
		}

		mu.Lock()
		if remaining[page] > 0 {
			remaining[page]--
			mu.Unlock()
			writeJSON(w, http.StatusInternalServerError, `{"error":"upstream unavailable"}`)
			return
		}
		mu.Unlock()

		body, ok := pages[page]
		if !ok {
			writeJSON(w, http.StatusOK, `{"responseCode":"20000","totalPages":1}`)
			return
		}
		writeJSON(w, http.StatusOK, body)
	})
}

// RequestCount returns the total number of requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// AuthCount returns the number of token exchanges attempted.
func (m *MockAPI) AuthCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authCount
}

// PagesRequested returns the page numbers requested for a path, in order.
func (m *MockAPI) PagesRequested(path string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pageRequests[path]...)
}

// LastAuthHeader returns the headers of the most recent token exchange.
func (m *MockAPI) LastAuthHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// AuthOK builds a successful token-exchange body.
func AuthOK(token string) string {
	return fmt.Sprintf(`{"responseCode":"20000","tokenData":{"access_token":"%s"}}`, token)
}

// AuthInvalidGrant builds a rejected-credentials body.
func AuthInvalidGrant() string {
	return `{"responseCode":"invalid_grant"}`
}

// AgentRecord builds one upstream agent record.
func AgentRecord(id int64, businessName string, mobile int64) string {
	return fmt.Sprintf(`{"id":%d,"businessName":"%s","mobileNumber":%d}`, id, businessName, mobile)
}

// AgentsPage builds an agents page body.
func AgentsPage(totalPages int, records ...string) string {
	return fmt.Sprintf(`{"responseCode":"20000","totalPages":%d,"agents":[%s]}`,
		totalPages, strings.Join(records, ","))
}

// TransactionRecord builds one upstream transaction record.
func TransactionRecord(reference string, amount string, status string, reversed, shouldBeReversed bool, agentID int64) string {
	return fmt.Sprintf(
		`{"reference":"%s","amount":%s,"status":"%s","reversed":%t,"shouldBeReversed":%t,"agentId":%d,"transactionTime":"2025-03-14T09:30:00Z"}`,
		reference, amount, status, reversed, shouldBeReversed, agentID)
}

// TransactionsPage builds a consolidated-transactions page body.
func TransactionsPage(totalPages int, records ...string) string {
	return fmt.Sprintf(`{"responseCode":"20000","totalPages":%d,"consolidatedTransactions":[%s]}`,
		totalPages, strings.Join(records, ","))
}

// ProfileBody builds a profile response body.
func ProfileBody(firstName, lastName string, mobile int64) string {
	return fmt.Sprintf(`{"responseCode":"20000","totalPages":1,"profile":{"firstName":"%s","lastName":"%s","mobileNumber":%d}}`,
		firstName, lastName, mobile)
}
