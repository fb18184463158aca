// Package executor locates the local script executor on its loopback port,
// tracks whether it is reachable, and dispatches scripts to it.
//
// Two discovery strategies live here. Manager keeps a sticky binding to one
// port and heals itself on every failed probe or send; ReconnectLoop keeps that
// binding fresh in the background. Scanner walks the whole port range for each
// one-shot execution and never touches the sticky binding.
package executor

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Wire protocol constants. These must match the executor byte for byte.
const (
	SecretPath  = "/secret"
	ExecutePath = "/execute"
	SecretToken = "0xdeadbeef"
	ContentType = "text/plain"
)

// Defaults for the executor port range and timing.
const (
	DefaultHost           = "127.0.0.1"
	DefaultMinPort        = 6969
	DefaultMaxPort        = 7069
	DefaultCheckInterval  = 2500 * time.Millisecond
	DefaultProbeTimeout   = 1 * time.Second
	DefaultExecuteTimeout = 5 * time.Second
)

// Options configures a Prober, Manager, Scanner and ReconnectLoop.
type Options struct {
	// Host is the loopback address of the executor.
	Host string

	// MinPort and MaxPort bound the port range (inclusive).
	MinPort int
	MaxPort int

	// CheckInterval is the ReconnectLoop period.
	CheckInterval time.Duration

	// ProbeTimeout bounds a single GET /secret.
	ProbeTimeout time.Duration

	// ExecuteTimeout bounds a single POST /execute.
	ExecuteTimeout time.Duration

	// Client is shared by every request. Nil uses a fresh client.
	Client *http.Client

	// Logger receives debug/info logs. Nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions returns the stock executor settings.
func DefaultOptions() Options {
	return Options{
		Host:           DefaultHost,
		MinPort:        DefaultMinPort,
		MaxPort:        DefaultMaxPort,
		CheckInterval:  DefaultCheckInterval,
		ProbeTimeout:   DefaultProbeTimeout,
		ExecuteTimeout: DefaultExecuteTimeout,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Host == "" {
		o.Host = d.Host
	}
	if o.MinPort == 0 {
		o.MinPort = d.MinPort
	}
	if o.MaxPort == 0 {
		o.MaxPort = d.MaxPort
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = d.CheckInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = d.ProbeTimeout
	}
	if o.ExecuteTimeout <= 0 {
		o.ExecuteTimeout = d.ExecuteTimeout
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
