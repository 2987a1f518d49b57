// Package unity integrates an optional Unity editor bridge. The bridge is an
// external HTTP endpoint configured per workspace; when no URL is configured
// the capability is absent and every operation returns Unavailable.
package unity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mkade/foreman/internal/protocol"
)

// Bridge talks to a running Unity editor bridge over HTTP.
type Bridge struct {
	baseURL string
	client  *http.Client
}

// New returns a Bridge for the configured URL, or nil when url is empty —
// callers hold the nil as "capability absent" and all methods on a nil
// Bridge return Unavailable.
func New(url string) *Bridge {
	if url == "" {
		return nil
	}
	return &Bridge{
		baseURL: strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Status reports the bridge's editor state.
func (b *Bridge) Status(ctx context.Context) (map[string]interface{}, error) {
	return b.call(ctx, http.MethodGet, "/status")
}

// Compile asks the editor to recompile scripts and returns the result.
func (b *Bridge) Compile(ctx context.Context) (map[string]interface{}, error) {
	return b.call(ctx, http.MethodPost, "/compile")
}

// Test asks the editor to run its test suite and returns the result.
func (b *Bridge) Test(ctx context.Context) (map[string]interface{}, error) {
	return b.call(ctx, http.MethodPost, "/test")
}

func (b *Bridge) call(ctx context.Context, method, path string) (map[string]interface{}, error) {
	if b == nil {
		return nil, protocol.Unavailablef("unity bridge is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build unity request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, protocol.Unavailablef("unity bridge unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, protocol.Unavailablef("unity bridge returned %s", resp.Status)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode unity response: %w", err)
	}
	return out, nil
}
