package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"rf24mesh/internal/addr"
)

func TestNotifyPostsWebhookPayload(t *testing.T) {
	var mu sync.Mutex
	var got Payload
	done := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		select {
		case done <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, Enabled: true})
	n.Notify(addr.BindSiteChild1, 0o11, "EXPIRED", "missed liveness ticks")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called within 2s")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.BindSite != "CHILD_1" || got.Kind != "EXPIRED" {
		t.Fatalf("payload = %+v, want BindSite=CHILD_1 Kind=EXPIRED", got)
	}
}

func TestNotifyDisabledDoesNotCallWebhook(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, Enabled: false})
	n.Notify(addr.BindSiteChild1, 0o11, "EXPIRED", "missed liveness ticks")
	time.Sleep(50 * time.Millisecond)
	if called {
		t.Fatal("a disabled Notifier must never call the webhook")
	}
}

func TestNotifyWithNoURLIsSilentNoOp(t *testing.T) {
	n := New(Config{Enabled: true})
	n.Notify(addr.BindSiteParent, addr.RootNode0, "REFUSED", "bind site already bound")
}
