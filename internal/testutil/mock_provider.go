// Package testutil provides testing utilities for the ingest pipeline.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines one scripted reply of the mock provider.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockProvider is a configurable mock HTTP provider for testing.
// Responses are scripted per path and served in order; the last scripted
// response of a path is repeated once the script runs out.
type MockProvider struct {
	server *httptest.Server

	mu       sync.Mutex
	scripts  map[string][]MockResponse
	served   map[string]int
	fallback MockResponse
	requests []*http.Request
	bodies   []string
}

// NewMockProvider creates a new mock provider. Unscripted paths answer 404.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{
		scripts:  make(map[string][]MockResponse),
		served:   make(map[string]int),
		fallback: MockResponse{StatusCode: http.StatusNotFound},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

func (m *MockProvider) handle(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	m.mu.Lock()
	m.requests = append(m.requests, r.Clone(r.Context()))
	m.bodies = append(m.bodies, r.PostForm.Encode())

	resp := m.fallback
	if script := m.scripts[r.URL.Path]; len(script) > 0 {
		idx := m.served[r.URL.Path]
		if idx >= len(script) {
			idx = len(script) - 1
		}
		resp = script[idx]
		m.served[r.URL.Path]++
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if resp.Body != "" && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Client returns an HTTP client wired to the mock server.
func (m *MockProvider) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Script sets the ordered responses for a path, replacing any previous script.
func (m *MockProvider) Script(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = responses
	m.served[path] = 0
}

// RequestCount returns the number of requests received.
func (m *MockProvider) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// PathCount returns the number of requests received for a path.
func (m *MockProvider) PathCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.URL.Path == path {
			n++
		}
	}
	return n
}

// Requests returns a copy of the received requests in arrival order.
func (m *MockProvider) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// FormBodies returns the url-encoded form body of every request in arrival order.
func (m *MockProvider) FormBodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bodies...)
}

// NewJSONResponse creates a 200 OK response with a JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":           "application/json; charset=utf-8",
			"X-Rate-Limit-Remaining": "3900",
		},
	}
}

// NewNotFoundResponse creates the 404 a provider sends when it has no records.
func NewNotFoundResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusNotFound}
}

// NewRateLimitResponse creates a 429 response. An empty retryAfter omits the header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers: map[string]string{
			"X-Rate-Limit-Remaining": "0",
		},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewUnauthorizedResponse creates a 401 Unauthorized response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusUnauthorized}
}
