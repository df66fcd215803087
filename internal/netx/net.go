// Package netx holds small networking helpers shared by the sync engine:
// a connectivity probe and a presigned-URL uploader for image blobs.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const probeTimeout = 3 * time.Second

// Online reports whether the given endpoint currently answers HTTP requests.
// Any response, including an error status, counts as reachable; only a
// transport-level failure means offline. An empty endpoint is treated as
// always online (useful in tests and air-gapped setups).
func Online(ctx context.Context, endpoint string) bool {
	if endpoint == "" {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return true
}

// UploadToPresignedURL PUTs the payload to a presigned object-store URL.
func UploadToPresignedURL(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
