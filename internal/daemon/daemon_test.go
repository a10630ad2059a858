package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/chatsync-dev/chatsync/internal/api"
	"github.com/chatsync-dev/chatsync/internal/bus"
	"github.com/chatsync-dev/chatsync/internal/client"
	"github.com/chatsync-dev/chatsync/internal/config"
	"github.com/chatsync-dev/chatsync/internal/credential"
	"github.com/chatsync-dev/chatsync/internal/store"
	intsync "github.com/chatsync-dev/chatsync/internal/sync"
	"go.uber.org/zap"
)

// fakeChatGPTRemote serves just enough of the ChatGPT web API for an
// end-to-end pass: list, detail, soft delete.
func fakeChatGPTRemote(t *testing.T) *httptest.Server {
	t.Helper()

	conv := func(i int) map[string]any {
		return map[string]any{
			"id":          "conv-" + strconv.Itoa(i),
			"title":       "conversation " + strconv.Itoa(i),
			"create_time": 1700000000.0 - float64(i),
			"update_time": 1700001000.0 - float64(i),
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-e2e" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/conversations":
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			var items []map[string]any
			for i := offset; i < 3 && i < offset+limit; i++ {
				items = append(items, conv(i))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "total": 3})

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/conversation/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"title": "conversation",
				"mapping": map[string]any{
					"root": map[string]any{"id": "root", "children": []string{"n1"}},
					"n1": map[string]any{
						"id": "n1", "parent": "root", "children": []string{"n2"},
						"message": map[string]any{
							"id":          "n1",
							"author":      map[string]any{"role": "user"},
							"content":     map[string]any{"content_type": "text", "parts": []any{"hello there"}},
							"create_time": 1700000000.0,
						},
					},
					"n2": map[string]any{
						"id": "n2", "parent": "n1", "children": []string{},
						"message": map[string]any{
							"id":          "n2",
							"author":      map[string]any{"role": "assistant"},
							"content":     map[string]any{"content_type": "text", "parts": []any{"hi!"}},
							"create_time": 1700000001.0,
						},
					},
				},
			})

		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/conversation/"):
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitKind(t *testing.T, ch <-chan bus.Event, kind string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", kind)
		}
	}
}

// TestDaemonEndToEnd drives the whole stack through the Unix socket:
// credential capture by hostname, auto sync against a fake remote,
// detail fetch, backup, delete, reconcile.
func TestDaemonEndToEnd(t *testing.T) {
	// Use a short path to avoid the 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-e2e-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	remote := fakeChatGPTRemote(t)

	cfg := &config.Config{Platforms: map[string]config.PlatformConfig{
		"chatgpt": {BaseURL: remote.URL},
	}}

	db, err := store.Open(filepath.Join(tmpDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	b := bus.New()
	creds := credential.NewStore(b)
	reg := provideRegistry(cfg)
	engine := intsync.NewEngine(db, reg, creds, b, zap.NewNop(), intsync.Options{PageSize: 2, PageDelay: time.Millisecond})
	rec := intsync.NewReconciler(db, reg, creds, b, zap.NewNop(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	p := Params{DataDir: tmpDir, SocketPath: socketPath}
	srv, err := NewServer(
		p,
		zap.NewNop(),
		api.NewSyncService(engine, db, reg),
		api.NewPlatformService(reg, creds, engine),
		api.NewConversationService(db, rec),
		api.NewBackupService(rec),
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	cli := client.New(socketPath)

	h, err := cli.Health(ctx)
	if err != nil || h.Status != "ok" {
		t.Fatalf("Health() = %+v, %v", h, err)
	}

	platforms, err := cli.Platforms(ctx)
	if err != nil || len(platforms) != 2 {
		t.Fatalf("Platforms() = %v, %v", platforms, err)
	}
	if platforms[0].Authenticated {
		t.Error("platform authenticated before credential capture")
	}

	// Credential capture by hostname triggers the auto sync.
	ch, unsub := b.Subscribe("sync.", 32)
	defer unsub()

	resolved, preview, err := cli.SetCredential(ctx, "", "chatgpt.com", "tok-e2e")
	if err != nil || resolved != "chatgpt" {
		t.Fatalf("SetCredential() = %q, %v", resolved, err)
	}
	if preview == "" || strings.Contains(preview, "tok-e2e") {
		t.Errorf("preview %q leaks the credential", preview)
	}
	waitKind(t, ch, bus.KindSyncCompleted)

	snap, err := cli.Conversations(ctx, "chatgpt")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Conversations) != 3 || !snap.SyncComplete {
		t.Fatalf("snapshot = %d convs, complete=%v", len(snap.Conversations), snap.SyncComplete)
	}

	st, err := cli.SyncStatus(ctx, "chatgpt")
	if err != nil || st.Phase != intsync.PhaseIdle || st.TotalCount != 3 {
		t.Fatalf("SyncStatus() = %+v, %v", st, err)
	}

	auth, err := cli.CheckAuth(ctx, "chatgpt")
	if err != nil || !auth.OK {
		t.Fatalf("CheckAuth() = %+v, %v", auth, err)
	}

	detail, err := cli.ConversationDetail(ctx, "chatgpt", "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != 2 || detail.Messages[0].Content != "hello there" {
		t.Fatalf("detail = %+v", detail.Messages)
	}
	if detail.Conversation == nil || detail.Conversation.Snippet != "hello there" {
		t.Errorf("conversation not enriched: %+v", detail.Conversation)
	}

	if err := cli.DeleteConversation(ctx, "chatgpt", "conv-1", true); err != nil {
		t.Fatal(err)
	}
	snap, _ = cli.Conversations(ctx, "chatgpt")
	if len(snap.Conversations) != 2 || snap.TotalCount != 2 {
		t.Errorf("after delete: %d convs, total %d", len(snap.Conversations), snap.TotalCount)
	}

	backups, err := cli.Backups(ctx, "chatgpt")
	if err != nil || len(backups) != 1 || backups[0].ID != "conv-1" {
		t.Fatalf("Backups() = %v, %v", backups, err)
	}
	full, err := cli.BackupDetail(ctx, "chatgpt", "conv-1")
	if err != nil || len(full.Messages) != 2 {
		t.Fatalf("BackupDetail() = %+v, %v", full, err)
	}

	// Nothing running, nothing to stop.
	if stopped, err := cli.StopSync(ctx, "chatgpt"); err != nil || stopped {
		t.Errorf("StopSync() while idle = %v, %v", stopped, err)
	}
}

// TestServerParams verifies NewServer honors the socket override and
// creates the socket with owner-only permissions.
func TestServerParams(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-srv-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	db, err := store.Open(filepath.Join(tmpDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	b := bus.New()
	creds := credential.NewStore(b)
	reg := provideRegistry(&config.Config{})
	engine := intsync.NewEngine(db, reg, creds, b, zap.NewNop(), intsync.Options{})
	rec := intsync.NewReconciler(db, reg, creds, b, zap.NewNop(), 0)

	srv, err := NewServer(
		Params{DataDir: tmpDir, SocketPath: socketPath},
		zap.NewNop(),
		api.NewSyncService(engine, db, reg),
		api.NewPlatformService(reg, creds, engine),
		api.NewConversationService(db, rec),
		api.NewBackupService(rec),
	)
	if err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permissions = %o, want 0600", perm)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket not removed on stop")
	}
}
