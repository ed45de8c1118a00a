package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"NoteSalesTracker/internal/ports"
)

type botServer struct {
	mu       sync.Mutex
	getMe    int
	messages []map[string]string
}

func (b *botServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")

		b.mu.Lock()
		defer b.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			b.getMe++
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"tracker","username":"tracker_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			b.messages = append(b.messages, map[string]string{
				"chat_id": r.PostForm.Get("chat_id"),
				"text":    r.PostForm.Get("text"),
				"path":    r.URL.Path,
			})
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestNotifierSendsMessage(t *testing.T) {
	t.Parallel()

	bs := &botServer{}
	srv := httptest.NewServer(bs.handler(t))
	defer srv.Close()

	n := NewNotifier("TOKEN", "42", WithEndpoint(srv.URL+"/bot%s/%s"), WithHTTPClient(srv.Client()))
	ctx := context.Background()

	if err := n.Notify(ctx, ports.LevelSuccess, "pass complete"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(ctx, ports.LevelError, "boom"); err != nil {
		t.Fatalf("second notify: %v", err)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.getMe != 1 {
		t.Fatalf("bot should be initialised once, got %d getMe calls", bs.getMe)
	}
	if len(bs.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(bs.messages))
	}
	first := bs.messages[0]
	if first["chat_id"] != "42" || first["text"] != "✅ pass complete" {
		t.Fatalf("unexpected message: %v", first)
	}
	if !strings.HasPrefix(first["path"], "/botTOKEN/") {
		t.Fatalf("token missing from path: %s", first["path"])
	}
	if bs.messages[1]["text"] != "🚨 boom" {
		t.Fatalf("unexpected error message: %v", bs.messages[1])
	}
}

func TestNotifierChannelName(t *testing.T) {
	t.Parallel()

	bs := &botServer{}
	srv := httptest.NewServer(bs.handler(t))
	defer srv.Close()

	n := NewNotifier("TOKEN", "@sales", WithEndpoint(srv.URL+"/bot%s/%s"), WithHTTPClient(srv.Client()))
	if err := n.Notify(context.Background(), ports.LevelInfo, "hi"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if got := bs.messages[0]["chat_id"]; got != "@sales" {
		t.Fatalf("expected channel username, got %q", got)
	}
}

func TestNotifierMisconfigured(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").Notify(context.Background(), ports.LevelInfo, "x"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}
