package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxResponseBody caps how much of an /execute answer is read back.
const maxResponseBody = 1 << 20

// Prober speaks the executor's two-endpoint HTTP protocol against a single port.
// It holds no connection state and never retries.
type Prober struct {
	host           string
	client         *http.Client
	probeTimeout   time.Duration
	executeTimeout time.Duration
}

// NewProber creates a prober from opts. Zero fields take their defaults.
func NewProber(opts Options) *Prober {
	opts = opts.withDefaults()
	return &Prober{
		host:           opts.Host,
		client:         opts.Client,
		probeTimeout:   opts.ProbeTimeout,
		executeTimeout: opts.ExecuteTimeout,
	}
}

// URL builds the executor URL for path on port.
func (p *Prober) URL(port int, path string) string {
	u := url.URL{
		Scheme: "http",
		Host:   p.host + ":" + strconv.Itoa(port),
		Path:   path,
	}
	return u.String()
}

// Probe reports whether the executor answers on port.
func (p *Prober) Probe(ctx context.Context, port int) bool {
	return p.Check(ctx, port) == nil
}

// Check issues GET /secret on port and returns nil iff the full body equals
// SecretToken. Transport failures come back as *url.Error.
func (p *Prober) Check(ctx context.Context, port int) error {
	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(port, SecretPath), nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// One byte past the token is enough to tell a longer body apart.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(len(SecretToken))+1))
	if err != nil {
		return fmt.Errorf("read /secret body: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	if string(body) != SecretToken {
		return ErrIdentityMismatch
	}
	return nil
}

// ExecuteResult is the peer's answer to POST /execute.
type ExecuteResult struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx answer.
func (r ExecuteResult) OK() bool {
	return isSuccess(r.StatusCode)
}

// Execute posts payload verbatim to /execute on port. A returned error is
// always a transport failure; HTTP-level failures are reported via the result.
func (p *Prober) Execute(ctx context.Context, port int, payload string) (ExecuteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.executeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL(port, ExecutePath), strings.NewReader(payload))
	if err != nil {
		return ExecuteResult{}, err
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return ExecuteResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return ExecuteResult{StatusCode: resp.StatusCode}, fmt.Errorf("read /execute body: %w", err)
	}
	return ExecuteResult{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// isTransportError reports whether err came from the HTTP round trip itself
// rather than from the peer's answer.
func isTransportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
