package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/security"
	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRetryCount  = 3

	// Serialized response bodies beyond this size are cut and marked
	maxResponseBytes = 10000
	truncationMarker = "... [truncated]"
)

// HTTPRequestExecutor performs the outbound call for httpRequest nodes.
// Transport errors and timeouts are retried with exponential backoff;
// non-2xx responses are returned to the caller, never retried.
type HTTPRequestExecutor struct {
	client *http.Client
	guard  *security.URLValidator
	log    *logger.Logger
}

// NewHTTPRequestExecutor creates the executor. guard may be nil, which
// disables SSRF validation.
func NewHTTPRequestExecutor(log *logger.Logger, guard *security.URLValidator) *HTTPRequestExecutor {
	return &HTTPRequestExecutor{
		// Per-attempt deadlines come from the context, not client.Timeout
		client: &http.Client{},
		guard:  guard,
		log:    log,
	}
}

// Execute runs the configured HTTP request.
// Config keys: method, url, headers, body, timeout (seconds), retry_count.
func (e *HTTPRequestExecutor) Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error) {
	method := "GET"
	if m, ok := config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required for httpRequest node")
	}

	if err := e.guard.Validate(url); err != nil {
		return nil, err
	}

	headers := parseHeaders(config["headers"])
	body, bodyIsJSON := prepareBody(config["body"])

	timeout := defaultHTTPTimeout
	if secs := configInt(config["timeout"], 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	retryCount := configInt(config["retry_count"], defaultRetryCount)

	var lastErr error
	for attempt := 0; attempt <= retryCount; attempt++ {
		result, err := e.doAttempt(ctx, method, url, headers, body, bodyIsJSON, timeout)
		if err == nil {
			return result, nil
		}

		lastErr = err
		e.log.Warn("http request attempt failed",
			"url", url,
			"attempt", attempt+1,
			"max_attempts", retryCount+1,
			"error", err)

		if attempt < retryCount {
			wait := time.Duration(1<<attempt) * time.Second // 1s, 2s, 4s, ...
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("http request failed after %d attempts: %v", retryCount+1, lastErr)
}

// doAttempt performs one request with its own deadline
func (e *HTTPRequestExecutor) doAttempt(ctx context.Context, method, url string, headers map[string]string, body []byte, bodyIsJSON bool, timeout time.Duration) (map[string]interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if bodyIsJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Parse response as JSON when possible, fall back to text
	var responseBody interface{}
	if err := json.Unmarshal(respBody, &responseBody); err != nil {
		responseBody = string(respBody)
	}
	responseBody = truncateBody(responseBody)

	responseHeaders := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		responseHeaders[k] = strings.Join(vals, ", ")
	}

	e.log.Debug("http request completed",
		"url", url,
		"method", method,
		"status_code", resp.StatusCode)

	return map[string]interface{}{
		"status_code":      resp.StatusCode,
		"response_headers": responseHeaders,
		"response_body":    responseBody,
		"success":          resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

// parseHeaders accepts a header map or a JSON-encoded string.
// Anything unparsable yields empty headers.
func parseHeaders(raw interface{}) map[string]string {
	headers := make(map[string]string)

	switch v := raw.(type) {
	case map[string]interface{}:
		for k, val := range v {
			headers[k] = fmt.Sprintf("%v", val)
		}
	case map[string]string:
		for k, val := range v {
			headers[k] = val
		}
	case string:
		if v == "" {
			return headers
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return headers
		}
		for k, val := range parsed {
			headers[k] = fmt.Sprintf("%v", val)
		}
	}

	return headers
}

// prepareBody turns the configured body into request bytes. String bodies
// that parse as JSON objects are normalized; map bodies are serialized.
// The second return reports whether a JSON content type should be set.
func prepareBody(raw interface{}) ([]byte, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case string:
		if v == "" {
			return nil, false
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			if _, isMap := parsed.(map[string]interface{}); isMap {
				normalized, err := json.Marshal(parsed)
				if err == nil {
					return normalized, true
				}
			}
		}
		return []byte(v), false
	case map[string]interface{}:
		serialized, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return serialized, true
	default:
		serialized, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return serialized, false
	}
}

// truncateBody bounds the serialized response body
func truncateBody(body interface{}) interface{} {
	var serialized string
	switch v := body.(type) {
	case string:
		serialized = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return body
		}
		serialized = string(raw)
	}

	if len(serialized) > maxResponseBytes {
		return serialized[:maxResponseBytes] + truncationMarker
	}
	return body
}

// configInt reads a numeric config value. JSON decoding produces float64;
// tests and callers may pass plain ints.
func configInt(raw interface{}, fallback int) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
