package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Scanner is the stateless discovery path: every call walks the port range
// from the bottom, stops at the first executor that answers, and uses that
// port for exactly one request. It shares nothing with Manager.
type Scanner struct {
	prober  *Prober
	minPort int
	maxPort int
	logger  *zap.Logger
}

// NewScanner creates a scanner over opts' port range.
func NewScanner(opts Options) *Scanner {
	opts = opts.withDefaults()
	return &Scanner{
		prober:  NewProber(opts),
		minPort: opts.MinPort,
		maxPort: opts.MaxPort,
		logger:  opts.Logger.Named("scan"),
	}
}

// Find probes MinPort..MaxPort in ascending order and returns the first port
// that answers. When none does the error is a *RangeExhaustedError carrying
// the last transport error seen.
func (s *Scanner) Find(ctx context.Context) (int, error) {
	var lastErr error
	for port := s.minPort; port <= s.maxPort; port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		err := s.prober.Check(ctx, port)
		if err == nil {
			s.logger.Debug("executor found", zap.Int("port", port))
			return port, nil
		}
		if isTransportError(err) {
			lastErr = err
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 0, &RangeExhaustedError{MinPort: s.minPort, MaxPort: s.maxPort, LastErr: lastErr}
}

// ExecuteOnce locates the executor with a fresh range scan and posts script
// to it, returning the executor's response body.
func (s *Scanner) ExecuteOnce(ctx context.Context, script string) (string, error) {
	port, err := s.Find(ctx)
	if err != nil {
		return "", err
	}
	return s.ExecuteAt(ctx, port, script)
}

// ExecuteAt posts script to a port already known to host the executor.
func (s *Scanner) ExecuteAt(ctx context.Context, port int, script string) (string, error) {
	res, err := s.prober.Execute(ctx, port, script)
	if err != nil {
		return "", fmt.Errorf("execute on port %d: %w", port, err)
	}
	if !res.OK() {
		return "", &DispatchError{Port: port, StatusCode: res.StatusCode, Body: res.Body}
	}
	return res.Body, nil
}
