package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-key", "lebleb", zap.NewNop())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestFetchMessagesEnvelope(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/findMessages/lebleb" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "test-key" {
			t.Error("missing apikey header")
		}
		var payload struct {
			Limit int `json:"limit"`
			Page  int `json:"page"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.Limit != 50 || payload.Page != 2 {
			t.Errorf("limit/page = %d/%d, want 50/2", payload.Limit, payload.Page)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": map[string]any{
				"records": []map[string]any{
					{"key": map[string]any{"id": "m1", "remoteJid": "x@s.whatsapp.net"}, "messageTimestamp": 100},
				},
				"total": 7,
			},
		})
	}))

	page, err := c.FetchMessages(context.Background(), "x@s.whatsapp.net", 50, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 1 || page.Total != 7 {
		t.Errorf("records=%d total=%d, want 1/7", len(page.Records), page.Total)
	}
	if page.Records[0].Key.ID != "m1" {
		t.Errorf("message id = %q", page.Records[0].Key.ID)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]Chat{{RemoteJID: "a@s.whatsapp.net"}})
	}))

	chats, err := c.FetchChats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("gateway called %d times, want 3", got)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.FetchContacts(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("gateway called %d times, want 1 (4xx is permanent)", got)
	}
}

func TestMalformedPayloadTreatedAsEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected": "shape"`))
	}))

	chats, err := c.FetchChats(context.Background())
	if err != nil {
		t.Fatalf("malformed payload should not error: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("got %d chats, want 0", len(chats))
	}
}

func TestFetchMediaRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(Media{Base64: "aGVsbG8=", Mimetype: "image/jpeg"})
	}))

	media, err := c.FetchMediaBase64(context.Background(), MessageKey{ID: "m1", RemoteJID: "x@s.whatsapp.net"})
	if err != nil {
		t.Fatal(err)
	}
	if media.Mimetype != "image/jpeg" {
		t.Errorf("mimetype = %q", media.Mimetype)
	}
}

func TestFetchMediaPermanentMiss(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.FetchMediaBase64(context.Background(), MessageKey{ID: "gone"})
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("err = %v, want ErrMediaUnavailable", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("gateway called %d times, want 1 (permanent miss is not retried)", got)
	}
}

func TestFetchMediaExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.FetchMediaBase64(context.Background(), MessageKey{ID: "m1"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// 3 media attempts, each with up to 2 transport-level retries.
	if got := calls.Load(); got != 9 {
		t.Errorf("gateway called %d times, want 9", got)
	}
}

func TestFetchInstanceInfo(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instanceName") != "lebleb" {
			t.Errorf("instanceName = %q", r.URL.Query().Get("instanceName"))
		}
		_ = json.NewEncoder(w).Encode([]InstanceInfo{
			{Name: "lebleb", ConnectionStatus: "open", OwnerJID: "201000000000@s.whatsapp.net"},
		})
	}))

	info, err := c.FetchInstanceInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !info.Connected() || info.OwnerJID == "" {
		t.Errorf("info = %+v", info)
	}
}
