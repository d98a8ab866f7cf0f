package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/constants"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/target"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

const (
	ContentTypeJSON = "json"
	ContentTypeForm = "form"
)

const (
	AuthTypeBearer = "bearer"
	AuthTypeBasic  = "basic"
)

// Dispatcher pushes lead payloads to endpoint URLs over HTTP. One
// dispatcher is shared across all deliveries; per-endpoint timeouts are
// applied through the request context.
type Dispatcher struct {
	client *http.Client
	logger logger.Logger
}

func NewDispatcher(cfg config.DeliveryConfig, log logger.Logger) *Dispatcher {
	timeout := constants.DefaultHTTPTimeout
	if cfg.DefaultTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.DefaultTimeoutSeconds) * time.Second
	}
	return &Dispatcher{
		client: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// Send performs a single delivery attempt against the endpoint config.
// GET requests carry the payload as query parameters merged into any
// params already present on the URL; other methods send a JSON or form
// body depending on the configured content type.
func (d *Dispatcher) Send(ctx context.Context, cfg target.EndpointConfig, payload map[string]interface{}) error {
	tracer := tracing.GetTracer("routing-service")
	ctx, span := tracer.Start(ctx, "delivery.send",
		trace.WithAttributes(
			attribute.String("endpoint.url", cfg.URL),
			attribute.String("endpoint.method", cfg.Method),
		),
	)
	defer span.End()

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := time.Now()
	err := d.send(ctx, method, cfg, payload)
	status := "delivered"
	if err != nil {
		status = "failed"
	}
	metrics.IncDeliveryAttempt(status, method)
	metrics.ObserveDeliveryDuration(time.Since(start), status)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (d *Dispatcher) send(ctx context.Context, method string, cfg target.EndpointConfig, payload map[string]interface{}) error {
	var (
		reqURL  string
		body    *bytes.Reader
		reqType string
	)

	if method == http.MethodGet {
		merged, err := mergeQuery(cfg.URL, payload)
		if err != nil {
			return fmt.Errorf("invalid endpoint url: %w", err)
		}
		reqURL = merged
		body = bytes.NewReader(nil)
	} else if cfg.ContentType == ContentTypeForm {
		reqURL = cfg.URL
		body = bytes.NewReader([]byte(formEncode(payload)))
		reqType = "application/x-www-form-urlencoded"
	} else {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		reqURL = cfg.URL
		body = bytes.NewReader(encoded)
		reqType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if reqType != "" {
		req.Header.Set("Content-Type", reqType)
	}

	switch cfg.AuthType {
	case AuthTypeBearer:
		if token, ok := cfg.AuthCredentials["token"]; ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case AuthTypeBasic:
		if username, ok := cfg.AuthCredentials["username"]; ok {
			req.SetBasicAuth(username, cfg.AuthCredentials["password"])
		}
	}

	d.logger.InfowCtx(ctx, "delivering payload",
		"url", reqURL,
		"method", method,
		"content_type", cfg.ContentType,
	)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return fmt.Errorf("endpoint returned status: %d", resp.StatusCode)
	}

	return nil
}

// mergeQuery folds the payload into the URL's existing query string so
// that logged URLs match what is sent on the wire.
func mergeQuery(rawURL string, payload map[string]interface{}) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range payload {
		q.Set(k, stringify(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func formEncode(payload map[string]interface{}) string {
	values := url.Values{}
	for k, v := range payload {
		values.Set(k, stringify(v))
	}
	return values.Encode()
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
