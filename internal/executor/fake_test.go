package executor

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

var errRefused = errors.New("connect: connection refused")

// fakePeer describes how one port answers.
type fakePeer struct {
	secret       string
	secretStatus int
	execStatus   int
	execBody     string
	refuse       bool
	hang         bool
}

func executorPeer() *fakePeer {
	return &fakePeer{secret: SecretToken, secretStatus: 200, execStatus: 200, execBody: "ok"}
}

// fakeNet is an http.RoundTripper that routes requests by port, so a whole
// port range can be simulated without binding real sockets.
type fakeNet struct {
	mu       sync.Mutex
	peers    map[int]*fakePeer
	probes   []int
	payloads []string
}

func newFakeNet() *fakeNet {
	return &fakeNet{peers: make(map[int]*fakePeer)}
}

func (f *fakeNet) set(port int, p *fakePeer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[port] = p
}

func (f *fakeNet) remove(port int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.peers, port)
}

func (f *fakeNet) probed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.probes...)
}

func (f *fakeNet) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

func (f *fakeNet) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(req.URL.Port())

	f.mu.Lock()
	var peer *fakePeer
	if p, ok := f.peers[port]; ok {
		cp := *p
		peer = &cp
	}
	if req.URL.Path == SecretPath {
		f.probes = append(f.probes, port)
	}
	f.mu.Unlock()

	if peer == nil || peer.refuse {
		return nil, errRefused
	}
	if peer.hang {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}

	switch req.URL.Path {
	case SecretPath:
		return textResponse(req, peer.secretStatus, peer.secret), nil
	case ExecutePath:
		body, _ := io.ReadAll(req.Body)
		f.mu.Lock()
		f.payloads = append(f.payloads, string(body))
		f.mu.Unlock()
		return textResponse(req, peer.execStatus, peer.execBody), nil
	default:
		return textResponse(req, http.StatusNotFound, "not found"), nil
	}
}

func textResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{ContentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func testOptions(rt http.RoundTripper) Options {
	opts := DefaultOptions()
	opts.Client = &http.Client{Transport: rt}
	opts.ProbeTimeout = 200 * time.Millisecond
	opts.ExecuteTimeout = 200 * time.Millisecond
	return opts
}

// recvEvent waits for the next event or fails the test.
func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
