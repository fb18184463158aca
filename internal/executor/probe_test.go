package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProber_Check(t *testing.T) {
	tests := []struct {
		name    string
		peer    *fakePeer
		wantOK  bool
		wantErr error
	}{
		{
			name:   "executor answers",
			peer:   executorPeer(),
			wantOK: true,
		},
		{
			name:    "wrong token",
			peer:    &fakePeer{secret: "0xcafebabe", secretStatus: 200},
			wantErr: ErrIdentityMismatch,
		},
		{
			name:    "token with trailing newline",
			peer:    &fakePeer{secret: SecretToken + "\n", secretStatus: 200},
			wantErr: ErrIdentityMismatch,
		},
		{
			name:    "empty body",
			peer:    &fakePeer{secret: "", secretStatus: 200},
			wantErr: ErrIdentityMismatch,
		},
		{
			name: "right token but server error",
			peer: &fakePeer{secret: SecretToken, secretStatus: 500},
		},
		{
			name: "connection refused",
			peer: nil,
		},
		{
			name: "hung peer times out",
			peer: &fakePeer{hang: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := newFakeNet()
			if tt.peer != nil {
				fn.set(DefaultMinPort, tt.peer)
			}
			p := NewProber(testOptions(fn))

			err := p.Check(context.Background(), DefaultMinPort)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantOK, p.Probe(context.Background(), DefaultMinPort))
		})
	}
}

func TestProber_CheckReportsStatus(t *testing.T) {
	fn := newFakeNet()
	fn.set(DefaultMinPort, &fakePeer{secret: SecretToken, secretStatus: http.StatusServiceUnavailable})
	p := NewProber(testOptions(fn))

	err := p.Check(context.Background(), DefaultMinPort)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.False(t, isTransportError(err))
}

func TestProber_TransportErrorsAreURLErrors(t *testing.T) {
	p := NewProber(testOptions(newFakeNet()))

	err := p.Check(context.Background(), DefaultMinPort)
	require.Error(t, err)
	assert.True(t, isTransportError(err))
	assert.ErrorIs(t, err, errRefused)
}

func TestProber_URL(t *testing.T) {
	p := NewProber(Options{Host: "127.0.0.1"})
	assert.Equal(t, "http://127.0.0.1:6970/secret", p.URL(6970, SecretPath))
	assert.Equal(t, "http://127.0.0.1:7069/execute", p.URL(7069, ExecutePath))
}

func TestProber_RealServer(t *testing.T) {
	var gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == SecretPath:
			io.WriteString(w, SecretToken)
		case r.Method == http.MethodPost && r.URL.Path == ExecutePath:
			gotContentType = r.Header.Get("Content-Type")
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			io.WriteString(w, "done")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	host, port := splitServerURL(t, srv.URL)
	p := NewProber(Options{Host: host})

	require.NoError(t, p.Check(context.Background(), port))

	res, err := p.Execute(context.Background(), port, "print('hi')\n")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "done", res.Body)
	assert.Equal(t, ContentType, gotContentType)
	assert.Equal(t, "print('hi')\n", gotBody, "payload must be sent verbatim")
}

func TestProber_ExecuteTransportError(t *testing.T) {
	p := NewProber(testOptions(newFakeNet()))

	_, err := p.Execute(context.Background(), DefaultMinPort, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errRefused))
}

func splitServerURL(t *testing.T, raw string) (string, int) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}
