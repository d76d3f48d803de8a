package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/storage/types"
)

// Remote is the network-backed tier: a JSON key-value API scoped by a
// namespace. A scope must be set before any call; network failures are
// reported as Offline errors rather than generic transport errors so the
// orchestrator can annotate results accordingly.
type Remote struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	scope string
}

// NewRemote creates a remote backend against baseURL. scope may be empty
// and set later via SetScope.
func NewRemote(baseURL, scope string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		baseURL: baseURL,
		scope:   scope,
		client:  &http.Client{Timeout: timeout},
	}
}

// Tier returns TierRemote.
func (r *Remote) Tier() types.Tier { return types.TierRemote }

// SetScope switches the namespace for all subsequent calls.
func (r *Remote) SetScope(scope string) {
	r.mu.Lock()
	r.scope = scope
	r.mu.Unlock()
}

// Scope returns the current namespace.
func (r *Remote) Scope() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scope
}

// keyURL builds the resource URL for key within the current scope.
func (r *Remote) keyURL(key string) (string, error) {
	scope := r.Scope()
	if scope == "" {
		return "", errs.ErrScopeRequired
	}
	return fmt.Sprintf("%s/v1/%s/keys/%s", r.baseURL, url.PathEscape(scope), url.PathEscape(key)), nil
}

// Get fetches the envelope for key.
func (r *Remote) Get(ctx context.Context, key string) (types.Envelope, bool, error) {
	u, err := r.keyURL(key)
	if err != nil {
		return types.Envelope{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.Envelope{}, false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return types.Envelope{}, false, fmt.Errorf("%w: %v", errs.ErrOffline, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return types.Envelope{}, false, nil
	default:
		return types.Envelope{}, false, fmt.Errorf("%w: remote get %s: status %d", errs.ErrTierUnavailable, key, resp.StatusCode)
	}

	var env types.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return types.Envelope{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return env, true, nil
}

// Set stores the envelope for key.
func (r *Remote) Set(ctx context.Context, key string, env types.Envelope) error {
	u, err := r.keyURL(key)
	if err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrOffline, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: remote set %s: status %d", errs.ErrTierUnavailable, key, resp.StatusCode)
	}
	return nil
}

// Delete removes the key from the remote store.
func (r *Remote) Delete(ctx context.Context, key string) (bool, error) {
	u, err := r.keyURL(key)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrOffline, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: remote delete %s: status %d", errs.ErrTierUnavailable, key, resp.StatusCode)
	}
}

// Exists reports whether the remote store has key.
func (r *Remote) Exists(ctx context.Context, key string) (bool, error) {
	u, err := r.keyURL(key)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrOffline, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

// Close releases nothing; the HTTP client needs no teardown.
func (r *Remote) Close() error { return nil }
