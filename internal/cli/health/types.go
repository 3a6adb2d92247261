// Package health decodes the /health report served next to /metrics by
// fileboxd.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

const StatusOK = "ok"

// Response is the body of GET /health. Checks maps a dependency name
// ("root", "index", "database") to "ok" or its error text.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthy reports whether every check passed.
func (r *Response) Healthy() bool {
	return r.Status == StatusOK
}

// Names returns the check names, sorted.
func (r *Response) Names() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fetch queries baseURL/health. A 503 still yields a decoded response so the
// failing checks can be shown.
func Fetch(ctx context.Context, baseURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &out, nil
}
