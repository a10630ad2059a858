package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeChatGPT serves a minimal ChatGPT backend with n conversations.
func fakeChatGPT(t *testing.T, n int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var offset, limit int
		fmt.Sscan(r.URL.Query().Get("offset"), &offset)
		fmt.Sscan(r.URL.Query().Get("limit"), &limit)

		items := []map[string]any{}
		for i := offset; i < n && i < offset+limit; i++ {
			items = append(items, map[string]any{
				"id":          fmt.Sprintf("conv-%03d", i),
				"title":       fmt.Sprintf("Conversation %d", i),
				"create_time": float64(1700000000 + i),
				"update_time": fmt.Sprintf("2024-01-%02dT10:00:00Z", i%27+1),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": items, "total": n, "offset": offset, "limit": limit,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChatGPTConversationsPage(t *testing.T) {
	srv := fakeChatGPT(t, 75)
	c := NewChatGPT(ChatGPTOptions{BaseURL: srv.URL})
	c.SetToken("tok-123")

	page, err := c.Conversations(context.Background(), 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Conversations) != 50 || page.Total != 75 || !page.HasMore {
		t.Errorf("page 1 = %d/%d hasMore=%v, want 50/75 true", len(page.Conversations), page.Total, page.HasMore)
	}
	if page.Conversations[0].ID != "conv-000" {
		t.Errorf("first id = %q", page.Conversations[0].ID)
	}
	if page.Conversations[0].Platform != ChatGPTID {
		t.Errorf("platform = %q", page.Conversations[0].Platform)
	}
	if page.Conversations[0].CreateTime != 1700000000_000 {
		t.Errorf("createTime = %d, want epoch-ms", page.Conversations[0].CreateTime)
	}
	if page.Conversations[0].UpdateTime == 0 {
		t.Error("RFC3339 update_time not parsed")
	}

	page, err = c.Conversations(context.Background(), 50, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Conversations) != 25 || page.HasMore {
		t.Errorf("page 2 = %d hasMore=%v, want 25 false", len(page.Conversations), page.HasMore)
	}
}

func TestChatGPTNoToken(t *testing.T) {
	c := NewChatGPT(ChatGPTOptions{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Conversations(context.Background(), 0, 50)
	if CodeOf(err) != CodeAuthRequired {
		t.Errorf("CodeOf(err) = %q, want AUTH_REQUIRED (no network call without token)", CodeOf(err))
	}
}

func TestChatGPTErrorClassification(t *testing.T) {
	tests := []struct {
		status     int
		retryAfter string
		want       Code
	}{
		{http.StatusUnauthorized, "", CodeAuthRequired},
		{http.StatusForbidden, "", CodeAuthRequired},
		{http.StatusNotFound, "", CodeNotFound},
		{http.StatusTooManyRequests, "60", CodeRateLimited},
		{http.StatusInternalServerError, "", CodeNetworkError},
		{http.StatusBadGateway, "", CodeNetworkError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewChatGPT(ChatGPTOptions{BaseURL: srv.URL})
			c.SetToken("tok-123")
			_, err := c.Conversations(context.Background(), 0, 50)
			if CodeOf(err) != tt.want {
				t.Errorf("CodeOf(err) = %q, want %q (err=%v)", CodeOf(err), tt.want, err)
			}
			if tt.want == CodeRateLimited {
				var pe *Error
				if !errors.As(err, &pe) || pe.RetryAfter.Seconds() != 60 {
					t.Errorf("retry-after not propagated: %v", err)
				}
			}
		})
	}
}

func TestChatGPTTransportFailure(t *testing.T) {
	// Closed server: transport error, not a panic or raw error.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewChatGPT(ChatGPTOptions{BaseURL: srv.URL})
	c.SetToken("tok-123")
	_, err := c.Conversations(context.Background(), 0, 50)
	if CodeOf(err) != CodeNetworkError {
		t.Errorf("CodeOf(err) = %q, want NETWORK_ERROR", CodeOf(err))
	}
}

func TestChatGPTDeleteIsVisibilityPatch(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	c := NewChatGPT(ChatGPTOptions{BaseURL: srv.URL})
	c.SetToken("tok-123")
	if err := c.DeleteConversation(context.Background(), "conv-1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/conversation/conv-1" {
		t.Errorf("request = %s %s, want PATCH /conversation/conv-1", gotMethod, gotPath)
	}
	if visible, ok := gotBody["is_visible"]; !ok || visible {
		t.Errorf("body = %v, want is_visible=false", gotBody)
	}
}

func TestChatGPTBatchDeleteBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/conversation/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	c := NewChatGPT(ChatGPTOptions{BaseURL: srv.URL})
	c.SetToken("tok-123")

	res := c.DeleteConversations(context.Background(), []string{"a", "bad", "b"})
	if len(res.Succeeded) != 2 || len(res.Failed) != 1 || res.Failed[0] != "bad" {
		t.Errorf("batch result = %+v, want 2 succeeded, 1 failed (bad)", res)
	}
}

func TestChatGPTCheckAuth(t *testing.T) {
	srv := fakeChatGPT(t, 3)
	c := NewChatGPT(ChatGPTOptions{BaseURL: srv.URL})

	c.SetToken("wrong")
	res := c.CheckAuth(context.Background())
	if res.OK || res.Code != CodeAuthRequired {
		t.Errorf("CheckAuth(bad token) = %+v", res)
	}

	c.SetToken("tok-123")
	res = c.CheckAuth(context.Background())
	if !res.OK {
		t.Errorf("CheckAuth(good token) = %+v", res)
	}
}
