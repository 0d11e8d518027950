package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// MaxResponseSize caps how much of a registration reply is read. Anything
// beyond it is dropped.
const MaxResponseSize = 512

// HTTPPoster sends JSON bodies to the bemfa HTTP API.
type HTTPPoster struct {
	client *http.Client
}

// NewHTTPPoster returns a poster that never follows redirects.
func NewHTTPPoster(timeout time.Duration) *HTTPPoster {
	return &HTTPPoster{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// PostJSON performs a single POST of body to url and returns up to
// MaxResponseSize bytes of the reply.
func (p *HTTPPoster) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &HTTPError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &HTTPError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}
	return data, nil
}
