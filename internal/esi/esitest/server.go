// Package esitest provides a fake upstream API for tests.
package esitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// TokenPath is the fake OAuth2 token endpoint.
const TokenPath = "/oauth/token"

// Route is a canned response.
type Route struct {
	Status int
	Body   any
	Pages  int
	Header http.Header
}

// Server is an httptest server with canned routes and per-route call counters.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	routes     map[string]Route
	funcs      map[string]http.HandlerFunc
	calls      map[string]int
	tokenCalls int
	tokenFail  bool
	tokenDelay time.Duration
	lastAuth   string
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		routes: make(map[string]Route),
		funcs:  make(map[string]http.HandlerFunc),
		calls:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// TokenURL is the OAuth2 token endpoint of the fake.
func (s *Server) TokenURL() string {
	return s.URL + TokenPath
}

// Handle registers a 200/JSON-style route. key is the path, plus "?page=N" for N > 1.
func (s *Server) Handle(key string, status int, body any) {
	s.HandleRoute(key, Route{Status: status, Body: body})
}

// HandleRoute registers a full route.
func (s *Server) HandleRoute(key string, r Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[key] = r
}

// HandleFunc registers a custom handler.
func (s *Server) HandleFunc(key string, fn http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[key] = fn
}

// Calls returns how often key was requested.
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// CallsWithPrefix sums calls over every key starting with prefix.
func (s *Server) CallsWithPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.calls {
		if strings.HasPrefix(k, prefix) {
			n += v
		}
	}
	return n
}

// TokenCalls returns how many refresh exchanges were made.
func (s *Server) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

// FailTokens makes the token endpoint reject every exchange.
func (s *Server) FailTokens(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenFail = fail
}

// SlowTokens delays every token exchange.
func (s *Server) SlowTokens(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenDelay = d
}

// LastAuthorization returns the last Authorization header seen on an API route.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == TokenPath {
		s.serveToken(w, r)
		return
	}

	key := r.URL.Path
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 1 {
		key += "?page=" + strconv.Itoa(page)
	}

	s.mu.Lock()
	s.calls[key]++
	s.lastAuth = r.Header.Get("Authorization")
	fn, hasFn := s.funcs[key]
	route, hasRoute := s.routes[key]
	s.mu.Unlock()

	switch {
	case hasFn:
		fn(w, r)
	case hasRoute:
		for k, vs := range route.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		if route.Pages > 0 {
			w.Header().Set("X-Pages", strconv.Itoa(route.Pages))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(route.Status)
		if route.Body != nil {
			_ = json.NewEncoder(w).Encode(route.Body)
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"not found"}`)
	}
}

func (s *Server) serveToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokenCalls++
	n := s.tokenCalls
	fail := s.tokenFail
	delay := s.tokenDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if fail || r.FormValue("grant_type") != "refresh_token" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"refresh token rejected"}`)
		return
	}

	fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","expires_in":1199,"refresh_token":"refresh-%d"}`, n, n)
}
