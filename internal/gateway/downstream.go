package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
)

const maxResponseBody = 4 << 20

// HTTPDownstream calls instances over plain HTTP.
type HTTPDownstream struct {
	client *http.Client
}

// NewHTTPDownstream creates an HTTP downstream caller. Per-call deadlines come
// from the circuit breaker's operation timeout.
func NewHTTPDownstream(timeout time.Duration) *HTTPDownstream {
	return &HTTPDownstream{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Call implements Downstream
func (d *HTTPDownstream) Call(ctx context.Context, instance domain.ServiceInstance, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := fmt.Sprintf("http://%s:%d%s", instance.Address, instance.Port, req.Path)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build downstream request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("X-Forwarded-By", "TrafficResilience/1.0")
	httpReq.Header.Set("X-Instance-ID", instance.ID)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read downstream response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       payload,
	}, nil
}
