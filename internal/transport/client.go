// Package transport builds the shared HTTP client used by every backend
// and the four concrete dispatch.Backend implementations.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// NewClient builds an http.Client tuned the way the teacher's
// OpenAIBuiltinProvider does: fast connection/TLS timeouts but no overall
// request timeout, since upstream inference can legitimately run for
// minutes and cancellation is the caller's context's job.
func NewClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &http.Client{Transport: transport}
}

// NewH2Client is NewClient with HTTP/2 configured explicitly and preferred,
// for the binary-framed backend (spec §6: "HTTP/2 preferred, fallback
// HTTP/1.1").
func NewH2Client() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	_ = http2.ConfigureTransport(transport) // falls back to h1 on error, never fatal
	return &http.Client{Transport: transport}
}
