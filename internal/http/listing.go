package http

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const defaultMaxListingBytes = 16 << 20

// ListingFetcher downloads directory index pages
type ListingFetcher struct {
	client       *http.Client
	headers      Headers
	timeout      time.Duration
	maxBodyBytes int64
}

// NewListingFetcher wraps client for listing fetches bounded by timeout
func NewListingFetcher(client *http.Client, headers Headers, timeout time.Duration) *ListingFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ListingFetcher{
		client:       client,
		headers:      headers,
		timeout:      timeout,
		maxBodyBytes: defaultMaxListingBytes,
	}
}

// FetchListing GETs rawURL and returns the decoded body. Non-2xx replies are errors.
func (f *ListingFetcher) FetchListing(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	f.headers.Apply(req)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransferError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return f.readBody(resp)
}

func (f *ListingFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	var closer io.Closer

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader, closer = gz, gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader, closer = fl, fl
	}
	if closer != nil {
		defer closer.Close()
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("listing exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}
