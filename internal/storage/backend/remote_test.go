package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/storage/types"
)

// fakeKVServer is a minimal in-memory implementation of the remote
// key-value API, enough to exercise the client paths.
func fakeKVServer(t *testing.T) *httptest.Server {
	t.Helper()

	var mu sync.Mutex
	store := make(map[string][]byte)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		key := r.URL.Path
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			data, ok := store[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if r.Method == http.MethodGet {
				w.Write(data)
			}
		case http.MethodPut:
			var env types.Envelope
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, _ := json.Marshal(env)
			store[key] = data
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			if _, ok := store[key]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(store, key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func TestRemote_RoundTrip(t *testing.T) {
	srv := fakeKVServer(t)
	defer srv.Close()

	r := NewRemote(srv.URL, "de", 5*time.Second)
	ctx := context.Background()

	env := types.NewRawEnvelope([]byte(`{"xp":42}`))
	if err := r.Set(ctx, "word_progress", env); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := r.Get(ctx, "word_progress")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got.Data) != `{"xp":42}` {
		t.Errorf("data corrupted: %s", got.Data)
	}

	exists, err := r.Exists(ctx, "word_progress")
	if err != nil || !exists {
		t.Errorf("exists: got %v, %v", exists, err)
	}

	removed, err := r.Delete(ctx, "word_progress")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if removed, _ := r.Delete(ctx, "word_progress"); removed {
		t.Error("second delete reported removal")
	}
}

func TestRemote_ScopeRequired(t *testing.T) {
	srv := fakeKVServer(t)
	defer srv.Close()

	r := NewRemote(srv.URL, "", 5*time.Second)
	ctx := context.Background()

	if _, _, err := r.Get(ctx, "k"); !errors.Is(err, errs.ErrScopeRequired) {
		t.Errorf("get without scope: expected ErrScopeRequired, got %v", err)
	}
	if err := r.Set(ctx, "k", types.NewRawEnvelope([]byte("v"))); !errors.Is(err, errs.ErrScopeRequired) {
		t.Errorf("set without scope: expected ErrScopeRequired, got %v", err)
	}

	r.SetScope("es")
	if r.Scope() != "es" {
		t.Errorf("scope: expected es, got %s", r.Scope())
	}
	if err := r.Set(ctx, "k", types.NewRawEnvelope([]byte("v"))); err != nil {
		t.Errorf("set after SetScope: %v", err)
	}
}

func TestRemote_ScopesAreIsolated(t *testing.T) {
	srv := fakeKVServer(t)
	defer srv.Close()

	r := NewRemote(srv.URL, "de", 5*time.Second)
	ctx := context.Background()

	if err := r.Set(ctx, "k", types.NewRawEnvelope([]byte("german"))); err != nil {
		t.Fatalf("set: %v", err)
	}

	r.SetScope("fr")
	if _, ok, _ := r.Get(ctx, "k"); ok {
		t.Error("key visible across scopes")
	}

	r.SetScope("de")
	if _, ok, _ := r.Get(ctx, "k"); !ok {
		t.Error("key lost after scope switch back")
	}
}

func TestRemote_Offline(t *testing.T) {
	srv := fakeKVServer(t)
	url := srv.URL
	srv.Close() // connection refused from here on

	r := NewRemote(url, "de", time.Second)
	ctx := context.Background()

	if _, _, err := r.Get(ctx, "k"); !errs.IsOffline(err) {
		t.Errorf("get: expected offline error, got %v", err)
	}
	if err := r.Set(ctx, "k", types.NewRawEnvelope([]byte("v"))); !errs.IsOffline(err) {
		t.Errorf("set: expected offline error, got %v", err)
	}
	if _, err := r.Delete(ctx, "k"); !errs.IsOffline(err) {
		t.Errorf("delete: expected offline error, got %v", err)
	}
}

func TestRemote_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "de", time.Second)
	ctx := context.Background()

	if _, _, err := r.Get(ctx, "k"); !errors.Is(err, errs.ErrTierUnavailable) {
		t.Errorf("get: expected ErrTierUnavailable, got %v", err)
	}
	if err := r.Set(ctx, "k", types.NewRawEnvelope([]byte("v"))); !errors.Is(err, errs.ErrTierUnavailable) {
		t.Errorf("set: expected ErrTierUnavailable, got %v", err)
	}
}
