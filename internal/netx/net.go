// Package netx contains the raw HTTP transfer used to push staged payloads
// to remote storage nodes.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
)

// PostOctetStream sends body to url as a single application/octet-stream
// POST and returns the response status code.
//
// A non-nil error means the exchange itself failed (dial, timeout, broken
// body); HTTP level rejections are reported through the status code only.
// size is used as Content-Length when non-negative.
func PostOctetStream(ctx context.Context, client *http.Client, url string, body io.Reader, size int64) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", common.OctetStream)
	if size >= 0 {
		req.ContentLength = size
	}

	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}
