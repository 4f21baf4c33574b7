// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest pulls heterogeneous depot feeds into the fleet store.
// One poller per source fetches raw payloads, a bounded queue decouples
// the pollers from the single normalizer goroutine that decodes,
// transforms and applies them.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ManuGH/inductd/internal/config"
)

// maxPayloadBytes caps a single fetch so a misbehaving upstream cannot
// balloon the process.
const maxPayloadBytes = 8 << 20 // 8 MiB

// Record is one raw payload pulled from (or pushed by) a source.
type Record struct {
	SourceID  string    `json:"sourceId"`
	Timestamp time.Time `json:"timestamp"`
	Format    string    `json:"format"` // json|csv
	Bytes     []byte    `json:"bytes"`
}

// Fetcher pulls one raw payload from an upstream system.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]byte, error) { return f(ctx) }

// FileSource reads the payload from a file dropped by an export job.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	if len(b) > maxPayloadBytes {
		return nil, fmt.Errorf("payload %s exceeds %d bytes", s.Path, maxPayloadBytes)
	}
	return b, nil
}

// HTTPSource GETs the payload from an upstream HTTP endpoint.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource builds an HTTP source with a hardened client.
func NewHTTPSource(rawURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{URL: rawURL, Client: newHTTPClient(timeout)}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/csv")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", s.URL, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(b) > maxPayloadBytes {
		return nil, fmt.Errorf("fetch %s: payload exceeds %d bytes", s.URL, maxPayloadBytes)
	}
	return b, nil
}

// newHTTPClient returns a hardened HTTP client for source polls.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	dialTimeout := timeout
	if dialTimeout > 3*time.Second {
		dialTimeout = 3 * time.Second
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// fetcherFor resolves the default fetcher for a configured endpoint.
// An empty endpoint means the source is push-only (fed via Submit).
func fetcherFor(cfg config.SourceConfig) (Fetcher, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("source %s: parse endpoint: %w", cfg.ID, err)
	}
	switch u.Scheme {
	case "file":
		return FileSource{Path: u.Path}, nil
	case "http", "https":
		timeout := cfg.PollInterval / 2
		if timeout <= 0 || timeout > 30*time.Second {
			timeout = 10 * time.Second
		}
		return NewHTTPSource(cfg.Endpoint, timeout), nil
	case "":
		// Bare paths are treated as files.
		return FileSource{Path: cfg.Endpoint}, nil
	default:
		return nil, fmt.Errorf("source %s: unsupported endpoint scheme %q", cfg.ID, u.Scheme)
	}
}

// SourceStatus is the operational state of one ingestion source.
type SourceStatus string

const (
	SourceActive   SourceStatus = "ACTIVE"
	SourceError    SourceStatus = "ERROR"
	SourceDisabled SourceStatus = "DISABLED"
)

// SourceState is a point-in-time view of a source for health reporting.
type SourceState struct {
	ID                  string       `json:"id"`
	Type                string       `json:"type"`
	Status              SourceStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastPoll            time.Time    `json:"lastPoll,omitempty"`
	LastSuccess         time.Time    `json:"lastSuccess,omitempty"`
	LastError           string       `json:"lastError,omitempty"`
}

// severityFor maps an anomaly tag onto an alert severity.
func severityFor(tag string) string {
	switch tag {
	case "HIGH_TEMPERATURE", "CRITICAL_BRAKE_WEAR":
		return "critical"
	default:
		return "warning"
	}
}

// componentFor maps an anomaly tag onto the subsystem it implicates.
func componentFor(tag string) string {
	switch {
	case strings.Contains(tag, "TEMPERATURE"):
		return "engine"
	case strings.Contains(tag, "VIBRATION"):
		return "suspension"
	case strings.Contains(tag, "BRAKE"):
		return "brakes"
	case strings.Contains(tag, "PANTOGRAPH"):
		return "electrical"
	default:
		return ""
	}
}
