package brokers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// restCore is the shared HTTP plumbing of the vendor adapters: a resty
// client with the per-attempt timeout, JSON decoding, and normalization
// of transport and HTTP failures into *Error.
type restCore struct {
	client *resty.Client
	vendor string
	log    zerolog.Logger
}

func newRestCore(vendor, baseURL string, log zerolog.Logger) restCore {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(attemptTimeout).
		SetHeader("Accept", "application/json")
	return restCore{
		client: client,
		vendor: vendor,
		log:    log.With().Str("component", "broker").Str("vendor", vendor).Logger(),
	}
}

// doJSON executes one request and decodes the JSON body into a map.
// Network-level failures become temporary errors; HTTP failures are
// classified by status code.
func (c *restCore) doJSON(ctx context.Context, method, path string, body interface{}, headers map[string]string) (map[string]interface{}, error) {
	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	for k, v := range headers {
		req.SetHeader(k, v)
	}

	var result map[string]interface{}
	req.SetResult(&result).SetError(&result)

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &Error{
			Kind:    KindTemporary,
			Vendor:  c.vendor,
			Message: fmt.Sprintf("%s %s failed", method, path),
			Err:     err,
		}
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		msg := fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode())
		if m, ok := result["message"].(string); ok && m != "" {
			msg = m
		}
		return nil, &Error{
			Kind:    classifyStatus(resp.StatusCode()),
			Vendor:  c.vendor,
			Message: msg,
		}
	}

	return result, nil
}

// nestedString walks a decoded JSON object along path and returns the
// string leaf, or "" when any step is missing.
func nestedString(m map[string]interface{}, path ...string) string {
	cur := m
	for i, key := range path {
		if i == len(path)-1 {
			if v, ok := cur[key].(string); ok {
				return v
			}
			return ""
		}
		next, ok := cur[key].(map[string]interface{})
		if !ok {
			return ""
		}
		cur = next
	}
	return ""
}

// boolField returns a boolean leaf, defaulting to false.
func boolField(m map[string]interface{}, key string) bool {
	v, _ := m[key].(bool)
	return v
}
