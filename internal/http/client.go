package http

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultMaxRedirects bounds redirect chains for listings and transfers
const DefaultMaxRedirects = 10

// ClientOptions configures the shared HTTP client
type ClientOptions struct {
	ConnectTimeout  time.Duration
	MaxRedirects    int
	MaxConnsPerHost int
}

// NewClient builds an http.Client with a dial timeout and a bounded redirect
// policy. It has no overall timeout; callers bound each request with a context.
func NewClient(opts ClientOptions) *http.Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = 10
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		MaxIdleConns:          opts.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost:   opts.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	maxRedirects := opts.MaxRedirects
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}
