package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single processor round trip
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a processor response is read
const maxResponseSize = 1 << 20

// Transport sends requests to processors. It performs no retries.
type Transport interface {
	Post(ctx context.Context, endpoint, body string, headers map[string]string) (string, error)
	Get(ctx context.Context, endpoint string, headers map[string]string) (string, error)
}

// HTTPTransport is the net/http Transport with a span per request
type HTTPTransport struct {
	client *http.Client
	tracer trace.Tracer
	logger *logrus.Entry
}

// NewHTTPTransport creates a transport with the given timeout
func NewHTTPTransport(timeout time.Duration, logger *logrus.Entry) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
		},
		tracer: otel.Tracer("gateway-transport"),
		logger: logger.WithField("component", "gateway.transport"),
	}
}

// Post sends body to endpoint. Content-Type defaults to a form post.
func (t *HTTPTransport) Post(ctx context.Context, endpoint, body string, headers map[string]string) (string, error) {
	if _, ok := headers["Content-Type"]; !ok {
		merged := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
		for k, v := range headers {
			merged[k] = v
		}
		headers = merged
	}
	return t.do(ctx, http.MethodPost, endpoint, strings.NewReader(body), headers)
}

// Get fetches endpoint
func (t *HTTPTransport) Get(ctx context.Context, endpoint string, headers map[string]string) (string, error) {
	return t.do(ctx, http.MethodGet, endpoint, nil, headers)
}

func (t *HTTPTransport) do(ctx context.Context, method, endpoint string, body io.Reader, headers map[string]string) (string, error) {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil {
		host = u.Host
	}

	ctx, span := t.tracer.Start(ctx, "gateway "+method+" "+host, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("net.peer.name", host),
	)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		err = redactURLError(err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		t.logger.WithFields(logrus.Fields{
			"host":   host,
			"method": method,
		}).WithError(err).Warn("gateway request failed")
		return "", NewGatewayError("transport_error", "gateway request failed: "+err.Error(), true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", NewGatewayError("transport_error", "failed to read gateway response: "+err.Error(), true)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	t.logger.WithFields(logrus.Fields{
		"host":        host,
		"method":      method,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("gateway request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(otelcodes.Error, resp.Status)
		return string(data), NewGatewayError(
			"http_status",
			fmt.Sprintf("gateway returned %s", resp.Status),
			resp.StatusCode >= 500,
		)
	}

	span.SetStatus(otelcodes.Ok, "")
	return string(data), nil
}

// redactURLError drops the query and userinfo from the URL net/http puts in
// its errors. Some processors take merchant credentials in the query string.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		u.RawQuery = ""
		u.User = nil
		urlErr.URL = u.String()
	} else {
		urlErr.URL = ""
	}
	return err
}
