// Package fetch retrieves package archives and repository index files from
// remote resources, grounded on pkg/nix/client.go's Client{httpClient,
// userAgent} pattern.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

// HTTPClient downloads remote resources over HTTP(S), the concrete
// implementation of transaction.Fetcher and store.Fetcher, grounded on
// pkg/nix/client.go's Client.
type HTTPClient struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTPClient returns an HTTPClient with a default 60 second timeout, the
// Go equivalent of NewClient.
func NewHTTPClient() *HTTPClient {
	return NewHTTPClientWithTimeout(60 * time.Second)
}

// NewHTTPClientWithTimeout returns an HTTPClient with a custom timeout, the
// Go equivalent of NewClientWithTimeout.
func NewHTTPClientWithTimeout(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "mmpack-go/1.0",
	}
}

func (c *HTTPClient) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return resp, nil
}

// Download streams url's body into w, the Go equivalent of Client.Download.
func (c *HTTPClient) Download(ctx context.Context, url string, w io.Writer) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

// resourceURL builds the download URL for a remote resource, the Go
// equivalent of download_remote_resource's repo-url + filename join.
func resourceURL(res pkgmeta.RemoteResource) string {
	return res.Repo + "/" + res.Filename
}

// Fetch downloads res's archive into destPath, the transaction.Fetcher and
// store.Fetcher implementation backing a live prefix (as opposed to a test
// double).
func (c *HTTPClient) Fetch(ctx context.Context, res pkgmeta.RemoteResource, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return mmerrors.New("fetch.Fetch", mmerrors.IO, "", err)
	}
	defer f.Close()

	if err := c.Download(ctx, resourceURL(res), f); err != nil {
		os.Remove(destPath)
		return mmerrors.New("fetch.Fetch", mmerrors.Network, "", err)
	}
	return nil
}

// GetString fetches url and returns its body as a string, used to retrieve
// small text resources (e.g. an HTTP-served index file) without staging
// them on disk, the Go equivalent of Client.GetString.
func (c *HTTPClient) GetString(ctx context.Context, url string) (string, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}
