// Package executortest provides a loopback fake of the script executor for
// tests in packages built on top of executor.
package executortest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/standardbeagle/comet/internal/executor"
)

// Server is a fake executor answering /secret and /execute.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	alive        bool
	status       int
	body         string
	payloads     []string
	contentTypes []string
}

// NewServer starts a fake executor that answers the identity probe and
// accepts every script with 200 "ok".
func NewServer() *Server {
	s := &Server{alive: true, status: http.StatusOK, body: "ok"}
	mux := http.NewServeMux()
	mux.HandleFunc(executor.SecretPath, s.handleSecret)
	mux.HandleFunc(executor.ExecutePath, s.handleExecute)
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) handleSecret(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	alive := s.alive
	s.mu.Unlock()

	if !alive {
		http.Error(w, "gone", http.StatusServiceUnavailable)
		return
	}
	io.WriteString(w, executor.SecretToken)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.payloads = append(s.payloads, string(data))
	s.contentTypes = append(s.contentTypes, r.Header.Get("Content-Type"))
	status, body := s.status, s.body
	s.mu.Unlock()

	w.WriteHeader(status)
	io.WriteString(w, body)
}

// SetAlive controls whether /secret answers with the identity token.
func (s *Server) SetAlive(alive bool) {
	s.mu.Lock()
	s.alive = alive
	s.mu.Unlock()
}

// SetResponse sets the status and body returned by /execute.
func (s *Server) SetResponse(status int, body string) {
	s.mu.Lock()
	s.status = status
	s.body = body
	s.mu.Unlock()
}

// Payloads returns every body posted to /execute, in order.
func (s *Server) Payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

// ContentTypes returns the Content-Type of every /execute request, in order.
func (s *Server) ContentTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.contentTypes...)
}

// Port returns the port the fake listens on.
func (s *Server) Port() int {
	u, err := url.Parse(s.URL)
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		panic(err)
	}
	return port
}

// Options returns executor options whose range is exactly this server's port,
// with timeouts short enough for tests.
func (s *Server) Options() executor.Options {
	return executor.Options{
		Host:           "127.0.0.1",
		MinPort:        s.Port(),
		MaxPort:        s.Port(),
		CheckInterval:  time.Second,
		ProbeTimeout:   500 * time.Millisecond,
		ExecuteTimeout: time.Second,
	}
}
