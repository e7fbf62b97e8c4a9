package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"pushherd/internal/broadcast"
	"pushherd/internal/store"
	logx "pushherd/pkg/logx"
)

type fakeDispatcher struct {
	res  broadcast.Result
	err  error
	last broadcast.Message
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, msg broadcast.Message) (broadcast.Result, error) {
	f.last = msg
	return f.res, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []store.Subscription
	deleted []string
	tiers   map[string]string
	count   int
	fail    error
}

func (f *fakeStore) SaveSubscription(ctx context.Context, s store.Subscription) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return "sub:test", nil
}

func (f *fakeStore) ListAllWithTier(ctx context.Context) ([]store.SubscriptionWithTier, error) {
	return nil, nil
}

func (f *fakeStore) DeleteByID(ctx context.Context, id string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) SetTier(ctx context.Context, userID, tier string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tiers == nil {
		f.tiers = map[string]string{}
	}
	f.tiers[userID] = tier
	return nil
}

func (f *fakeStore) CountSubscriptions(ctx context.Context) (int, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	return f.count, nil
}

func (f *fakeStore) Close() error { return nil }

func newTestRouter(disp Dispatcher, st store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(disp, st, "BPubKey", logx.Nop()).Register(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBroadcastEndpoint(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{res: broadcast.Result{Total: 3, Sent: 2, Failed: 1}}
	r := newTestRouter(disp, &fakeStore{})

	w := doJSON(t, r, http.MethodPost, "/api/broadcast",
		`{"title":"Hi","body":"News","url":"/n","filter":"premium"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var res broadcast.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if res.Total != 3 || res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if disp.last.Filter != broadcast.FilterPremium || disp.last.URL != "/n" {
		t.Fatalf("dispatched message = %+v", disp.last)
	}
}

func TestBroadcastEndpointValidation(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeDispatcher{}, &fakeStore{})

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `title=x`},
		{name: "missing title", body: `{"body":"b"}`},
		{name: "missing body", body: `{"title":"t"}`},
		{name: "unknown filter", body: `{"title":"t","body":"b","filter":"vip"}`},
	}
	for _, tt := range tests {
		w := doJSON(t, r, http.MethodPost, "/api/broadcast", tt.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, w.Code)
		}
	}
}

func TestBroadcastEndpointRepositoryFailure(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{err: broadcast.ErrRepository}
	r := newTestRouter(disp, &fakeStore{})

	w := doJSON(t, r, http.MethodPost, "/api/broadcast", `{"title":"t","body":"b"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	// Hard failure must not look like a zero-result success.
	if strings.Contains(w.Body.String(), `"total"`) {
		t.Fatalf("error response leaks counts: %s", w.Body.String())
	}
}

func TestSubscribeEndpoint(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	r := newTestRouter(&fakeDispatcher{}, st)

	w := doJSON(t, r, http.MethodPost, "/api/subscriptions",
		`{"user_id":"alice","endpoint":"https://push.example/e","keys":{"p256dh":"k","auth":"a"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(st.saved) != 1 || st.saved[0].UserID != "alice" {
		t.Fatalf("saved = %+v", st.saved)
	}

	// Missing keys are rejected.
	w = doJSON(t, r, http.MethodPost, "/api/subscriptions",
		`{"user_id":"alice","endpoint":"https://push.example/e"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUnsubscribeEndpoint(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	r := newTestRouter(&fakeDispatcher{}, st)

	w := doJSON(t, r, http.MethodDelete, "/api/subscriptions/sub%3Aabc", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(st.deleted) != 1 {
		t.Fatalf("deleted = %v", st.deleted)
	}
}

func TestSetTierEndpoint(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	r := newTestRouter(&fakeDispatcher{}, st)

	w := doJSON(t, r, http.MethodPut, "/api/accounts/bob/tier", `{"tier":"VIP"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if st.tiers["bob"] != "vip" {
		t.Fatalf("tiers = %v", st.tiers)
	}

	w = doJSON(t, r, http.MethodPut, "/api/accounts/bob/tier", `{"tier":"gold"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestVapidKeyEndpoint(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeDispatcher{}, &fakeStore{})

	w := doJSON(t, r, http.MethodGet, "/api/vapid-public-key", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "BPubKey") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeDispatcher{}, &fakeStore{count: 7})

	w := doJSON(t, r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"subscriptions":7`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	degraded := newTestRouter(&fakeDispatcher{}, &fakeStore{fail: errors.New("down")})
	w = doJSON(t, degraded, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
