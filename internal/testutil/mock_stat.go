// Package testutil provides testing utilities for the STAT client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock STAT endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSTAT is a configurable mock STAT server for testing.
//
// Requests are expected under /<api-key>/<endpoint>. A wrong key gets a 401,
// an endpoint without a handler gets a 404.
type MockSTAT struct {
	server   *httptest.Server
	apiKey   string
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requests          []string
}

// NewMockSTAT creates a new mock STAT server accepting apiKey.
func NewMockSTAT(apiKey string) *MockSTAT {
	mock := &MockSTAT{
		apiKey:   apiKey,
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.requests = append(mock.requests, r.URL.RequestURI())
		mock.mu.Unlock()

		prefix := "/" + apiKey
		if !strings.HasPrefix(r.URL.Path, prefix+"/") {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"Response":{"responsecode":"401","Error":"invalid api key"}}`))
			return
		}
		endpoint := strings.TrimPrefix(r.URL.Path, prefix)

		mock.mu.RLock()
		handler, exists := mock.handlers[endpoint]
		mock.mu.RUnlock()

		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r)
	}))

	return mock
}

// URL returns the mock server URL, usable as the client base URL.
func (m *MockSTAT) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSTAT) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSTAT) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
}

// SetHandler sets a custom handler for an endpoint such as "/keywords/list".
func (m *MockSTAT) SetHandler(endpoint string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[endpoint] = handler
}

// SetResponse configures a fixed response for an endpoint.
func (m *MockSTAT) SetResponse(endpoint string, resp MockResponse) {
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence answers successive requests to endpoint with resps in order.
// The last response repeats once the sequence is used up.
func (m *MockSTAT) SetSequence(endpoint string, resps ...MockResponse) {
	var (
		mu sync.Mutex
		n  int
	)
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[min(n, len(resps)-1)]
		n++
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// SetPaged serves records from endpoint pageSize at a time, honoring the
// start query parameter and emitting relative nextpage references the way
// the live API does.
func (m *MockSTAT) SetPaged(endpoint string, records []string, pageSize int) {
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, _ := strconv.Atoi(q.Get("start"))
		if start > len(records) {
			start = len(records)
		}
		end := min(start+pageSize, len(records))

		next := ""
		if end < len(records) {
			q.Set("start", strconv.Itoa(end))
			q.Set("results", strconv.Itoa(pageSize))
			next = endpoint + "?" + q.Encode()
		}

		writeResponse(w, NewHealthyResponse(Envelope(records[start:end], next)))
	})
}

// Requests returns the request URIs received so far, in order.
func (m *MockSTAT) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSTAT) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// Envelope renders a STAT response envelope around JSON-encoded records.
// An empty next omits the nextpage member.
func Envelope(records []string, next string) string {
	var sb strings.Builder
	sb.WriteString(`{"Response":{"responsecode":"200","resultsreturned":"`)
	sb.WriteString(strconv.Itoa(len(records)))
	sb.WriteString(`","Result":[`)
	sb.WriteString(strings.Join(records, ","))
	sb.WriteString("]")
	if next != "" {
		fmt.Fprintf(&sb, `,"nextpage":%q`, next)
	}
	sb.WriteString("}}")
	return sb.String()
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"Response":{"responsecode":"429","Error":"rate limit exceeded"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusNotFound}
}
