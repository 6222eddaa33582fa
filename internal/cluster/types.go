package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds requests made without their own HTTP client.
const DefaultTimeout = 5 * time.Second

// httpClient is a shared HTTP client with reasonable timeouts for inter-node communication.
// The 5-second timeout prevents hanging requests from blocking cluster operations.
var httpClient = &http.Client{Timeout: DefaultTimeout}

// PostJSON sends body as JSON to url and decodes the response into out.
// Non-2xx responses return a *RemoteError built from the ErrorResponse body
// when the node sent one. A nil out discards the response body.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	return doJSON(ctx, httpClient, http.MethodPost, url, body, out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	return doJSON(ctx, httpClient, http.MethodGet, url, nil, out)
}

func doJSON(ctx context.Context, hc *http.Client, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return remoteError(url, resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func remoteError(url string, resp *http.Response) error {
	rerr := &RemoteError{URL: url, Status: resp.StatusCode}
	var body ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		rerr.Code = body.Code
		rerr.Message = body.Error
	}
	return rerr
}
