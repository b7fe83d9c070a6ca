package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds a whole request, including reading a streamed body.
	// Long batches on slow models can take several minutes.
	DefaultTimeout = 10 * time.Minute
	// MaxResponseBytes caps buffered response bodies.
	MaxResponseBytes = 8 * 1024 * 1024
	// MaxErrorBodyBytes caps the body text copied into an HTTP error message.
	MaxErrorBodyBytes = 64 * 1024

	MaxIdleConns          = 100
	MaxIdleConnsPerHost   = 20
	IdleConnTimeout       = 120 * time.Second
	TLSHandshakeTimeout   = 30 * time.Second
	ExpectContinueTimeout = 2 * time.Second
)

var (
	defaultClient     *http.Client
	defaultClientOnce sync.Once
	overrideMu        sync.RWMutex
	overrideClient    *http.Client
)

// NewClient returns an http.Client tuned for long-lived LLM connections.
func NewClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          MaxIdleConns,
		MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
		IdleConnTimeout:       IdleConnTimeout,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// GetDefaultClient returns the shared client. It is safe for concurrent use
// across batches and orchestration calls.
func GetDefaultClient() *http.Client {
	overrideMu.RLock()
	override := overrideClient
	overrideMu.RUnlock()
	if override != nil {
		return override
	}
	defaultClientOnce.Do(func() {
		defaultClient = NewClient(DefaultTimeout)
	})
	return defaultClient
}

// SetDefaultClientForTesting overrides the shared client and returns a restore func.
func SetDefaultClientForTesting(client *http.Client) func() {
	overrideMu.Lock()
	prev := overrideClient
	overrideClient = client
	overrideMu.Unlock()
	return func() {
		overrideMu.Lock()
		overrideClient = prev
		overrideMu.Unlock()
	}
}

// DoAndRead performs the request, reads the whole body up to MaxResponseBytes
// and always closes it.
func DoAndRead(client *http.Client, req *http.Request) ([]byte, *http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := ReadLimited(resp.Body, MaxResponseBytes)
	if err != nil {
		return nil, resp, err
	}
	return body, resp, nil
}

// ReadLimited reads r fully and fails when it holds more than limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	limited := &io.LimitedReader{R: r, N: limit + 1}
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response body too large (limit %d bytes)", limit)
	}
	return body, nil
}

// ErrorBody reads at most MaxErrorBodyBytes of an error response for
// diagnostics, ignoring read failures.
func ErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, MaxErrorBodyBytes))
	return string(body)
}
