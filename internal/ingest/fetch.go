package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// FetchArchive downloads the catalog archive to dest, overwriting any prior
// content. One attempt only; a failed fetch aborts the whole run.
func FetchArchive(ctx context.Context, client *http.Client, url, dest string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	f, err := os.Create(dest)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return &FetchError{URL: url, Err: err}
	}
	if err := f.Close(); err != nil {
		return &FetchError{URL: url, Err: err}
	}
	return nil
}
