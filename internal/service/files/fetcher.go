package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes bounds a single download
const maxFetchBytes = 20 << 20

// Fetcher downloads file references, resolving relative references against the CDN
type Fetcher struct {
	client  *http.Client
	cdnBase string
}

// NewFetcher creates a fetcher; a nil client gets a 60s timeout default
func NewFetcher(client *http.Client, cdnBase string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{client: client, cdnBase: strings.TrimRight(cdnBase, "/")}
}

// ResolveURL turns a file reference into an absolute URL
func (f *Fetcher) ResolveURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return f.cdnBase + "/" + strings.TrimLeft(ref, "/")
}

// Fetch downloads ref and returns its body
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	url := f.ResolveURL(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", url, err)
	}
	return body, nil
}
