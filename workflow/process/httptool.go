package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cwlgo/wfcore/workflow"
)

// HTTPToolProcess implements workflow.Process for a step that invokes a
// remote HTTP service in place of a local command line tool. The
// resolved input object supplies method/url/headers/body; the response
// is scattered across status_code/headers/body output parameters.
//
// Input Parameters:
//   - method: HTTP method ("GET" or "POST", defaults to "GET")
//   - url: Target URL (required)
//   - headers: Optional map of HTTP headers
//   - body: Optional request body (for POST requests)
//
// Output:
//   - status_code: HTTP status code (e.g., 200, 404)
//   - headers: Response headers as map
//   - body: Response body as string
type HTTPToolProcess struct {
	Client *http.Client
}

// NewHTTPToolProcess builds an HTTPToolProcess with a default client.
func NewHTTPToolProcess() *HTTPToolProcess {
	return &HTTPToolProcess{Client: &http.Client{}}
}

func (h *HTTPToolProcess) Job(ctx context.Context, input map[string]any, out workflow.OutputCallback, _ *workflow.RuntimeContext) workflow.JobSequence {
	result, err := h.call(ctx, input)
	if err != nil {
		out(map[string]any{
			"status_code": nil,
			"headers":     nil,
			"body":        nil,
		}, workflow.StatusPermanentFail)
		return doneSequence{}
	}
	out(result, workflow.StatusSuccess)
	return doneSequence{}
}

func (h *HTTPToolProcess) call(ctx context.Context, input map[string]any) (map[string]any, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != "GET" && method != "POST" {
		return nil, fmt.Errorf("unsupported HTTP method: %s (supported: GET, POST)", method)
	}

	var body io.Reader
	if bodyStr, ok := input["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for key, value := range headers {
			if valueStr, ok := value.(string); ok {
				req.Header.Set(key, valueStr)
			}
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	respHeaders := make(map[string]any)
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}, nil
}
