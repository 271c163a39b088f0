package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/abda11atar3k/leblebbot/internal/bus"
	"github.com/abda11atar3k/leblebbot/internal/cache"
	"github.com/abda11atar3k/leblebbot/internal/chats"
	"github.com/abda11atar3k/leblebbot/internal/config"
	"github.com/abda11atar3k/leblebbot/internal/gateway"
	"github.com/abda11atar3k/leblebbot/internal/httpapi"
	"github.com/abda11atar3k/leblebbot/internal/lock"
	"github.com/abda11atar3k/leblebbot/internal/messages"
	"github.com/abda11atar3k/leblebbot/internal/status"
)

// stubGateway serves empty gateway responses for every endpoint the daemon
// touches during a smoke test.
func stubGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/findChats/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/chat/findContacts/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/instance/fetchInstances", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"test","connectionStatus":"open"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDaemonLifecycle(t *testing.T) {
	gw := stubGateway(t)

	tmpDir, err := os.MkdirTemp("/tmp", "lebleb-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	// Acquire lock.
	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	// Setup components.
	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	caches := cache.NewManager(cache.TTLs{})
	client := gateway.NewClient(gw.URL, "test-key", "test", logger)
	agg := chats.NewAggregator(client, caches, chats.NopBanlist{}, nil, logger)
	merger := messages.NewMerger(client, caches, logger)
	handler := httpapi.NewHandler(agg, merger, caches, machine, b, logger)

	cfg := config.Default()
	srv, err := NewServer(Params{InstanceName: "test", Config: cfg, Listen: "127.0.0.1:0"}, logger, handler)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)
	base := "http://" + srv.Addr()

	// Health reports the machine's state.
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if health["status"] != string(status.Disconnected) {
		t.Errorf("health status = %q, want DISCONNECTED", health["status"])
	}

	// Chat list is empty but well-formed.
	resp, err = http.Get(base + "/chats")
	if err != nil {
		t.Fatal(err)
	}
	var chatList struct {
		Items []chats.Summary `json:"items"`
		Total int             `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatList); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /chats status = %d", resp.StatusCode)
	}
	if chatList.Total != 0 || len(chatList.Items) != 0 {
		t.Errorf("chat list = %+v, want empty", chatList)
	}
}

func TestWatchStatusFlushesOnDisconnect(t *testing.T) {
	logger := zap.NewNop()
	b := bus.New()
	caches := cache.NewManager(cache.TTLs{})
	machine := status.NewMachine(b)

	stop := watchStatus(b, caches, logger)
	defer stop()

	caches.Subjects.Set("g1", "Team")

	if err := machine.Transition(status.Connected); err != nil {
		t.Fatal(err)
	}
	if err := machine.Transition(status.Disconnected); err != nil {
		t.Fatal(err)
	}

	// The watcher drains the bus asynchronously.
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := caches.Subjects.Get("g1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("caches not flushed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestServerListenOverride verifies the test listen override takes precedence
// over the configured address.
func TestServerListenOverride(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Listen = "127.0.0.1:1" // would fail to bind

	logger := zap.NewNop()
	b := bus.New()
	caches := cache.NewManager(cache.TTLs{})
	machine := status.NewMachine(b)
	client := gateway.NewClient("http://127.0.0.1:0", "k", "test", logger)
	handler := httpapi.NewHandler(
		chats.NewAggregator(client, caches, chats.NopBanlist{}, nil, logger),
		messages.NewMerger(client, caches, logger),
		caches, machine, b, logger,
	)

	srv, err := NewServer(Params{InstanceName: "test", Config: cfg, Listen: "127.0.0.1:0"}, logger, handler)
	if err != nil {
		t.Fatalf("NewServer() with listen override failed: %v", err)
	}
	srv.Stop(context.Background())
}
