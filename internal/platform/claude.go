package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatsync-dev/chatsync/internal/store"
)

const claudeDefaultBaseURL = "https://claude.ai/api"

// Claude talks to the Claude web API. Requests are cookie-authenticated
// and scoped by organization id; the conversation list endpoint has no
// pagination, so the adapter fetches once and paginates client-side to
// keep the page contract indistinguishable from ChatGPT's.
type Claude struct {
	baseURL    string
	httpClient *http.Client

	mu         sync.RWMutex
	raw        string
	orgID      string
	sessionKey string
}

// ClaudeOptions configures the adapter. Zero values mean production defaults.
type ClaudeOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClaude creates a Claude adapter.
func NewClaude(opts ClaudeOptions) *Claude {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = claudeDefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Claude{baseURL: baseURL, httpClient: httpClient}
}

func (c *Claude) ID() string   { return ClaudeID }
func (c *Claude) Name() string { return "Claude" }

func (c *Claude) Hostnames() []string {
	return []string{"claude.ai"}
}

// SetToken accepts either a bare organization id or a
// "sessionKey=<cookie>;org=<uuid>" pair. The org id is the scoping
// identifier the page-context collaborator derives; it is not a secret.
func (c *Claude) SetToken(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = strings.TrimSpace(credential)
	c.orgID = ""
	c.sessionKey = ""
	for _, part := range strings.Split(c.raw, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "sessionKey="); ok {
			c.sessionKey = v
			continue
		}
		if v, ok := strings.CutPrefix(part, "org="); ok {
			c.orgID = v
			continue
		}
		if part != "" && !strings.Contains(part, "=") {
			c.orgID = part
		}
	}
}

func (c *Claude) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raw
}

func (c *Claude) credentials() (orgID, sessionKey string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orgID, c.sessionKey
}

// CheckAuth probes the conversation list. Without an organization id no
// request can even be formed, which is its own flavor of auth-required.
func (c *Claude) CheckAuth(ctx context.Context) AuthResult {
	if orgID, _ := c.credentials(); orgID == "" {
		return AuthResult{
			OK:      false,
			Code:    CodeAuthRequired,
			Message: "claude organization id not set, open claude.ai to re-authenticate",
		}
	}
	if _, err := c.fetchAll(ctx); err != nil {
		return AuthResult{OK: false, Code: CodeOf(err), Message: err.Error()}
	}
	return AuthResult{OK: true}
}

// wire types

type claudeItem struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	IsStarred bool   `json:"is_starred"`
}

type claudeDetail struct {
	UUID     string          `json:"uuid"`
	Name     string          `json:"name"`
	Messages []claudeMessage `json:"chat_messages"`
}

type claudeMessage struct {
	UUID      string `json:"uuid"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Index     int    `json:"index"`
	CreatedAt string `json:"created_at"`
}

func (c *Claude) Conversations(ctx context.Context, offset, limit int) (*Page, error) {
	all, err := c.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	total := len(all)
	page := &Page{Total: total}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page.Conversations = all[offset:end]
	}
	page.HasMore = offset+len(page.Conversations) < total
	return page, nil
}

// fetchAll retrieves the full conversation list and sorts it most
// recently updated first, matching the unified page ordering.
func (c *Claude) fetchAll(ctx context.Context) ([]store.Conversation, error) {
	orgID, _ := c.credentials()
	var items []claudeItem
	path := fmt.Sprintf("/organizations/%s/chat_conversations", orgID)
	if err := c.do(ctx, http.MethodGet, path, &items); err != nil {
		return nil, err
	}

	out := make([]store.Conversation, 0, len(items))
	for _, item := range items {
		out = append(out, store.Conversation{
			ID:         item.UUID,
			Title:      item.Name,
			Summary:    item.Summary,
			CreateTime: parseClaudeTime(item.CreatedAt),
			UpdateTime: parseClaudeTime(item.UpdatedAt),
			Platform:   ClaudeID,
			IsStarred:  item.IsStarred,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdateTime > out[j].UpdateTime
	})
	return out, nil
}

func (c *Claude) ConversationDetail(ctx context.Context, id string) ([]store.Message, error) {
	orgID, _ := c.credentials()
	var detail claudeDetail
	path := fmt.Sprintf("/organizations/%s/chat_conversations/%s", orgID, id)
	if err := c.do(ctx, http.MethodGet, path, &detail); err != nil {
		return nil, err
	}

	msgs := detail.Messages
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Index < msgs[j].Index })

	out := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		role := store.RoleAssistant
		if m.Sender == "human" {
			role = store.RoleUser
		}
		out = append(out, store.Message{
			ID:         m.UUID,
			Role:       role,
			Content:    m.Text,
			CreateTime: parseClaudeTime(m.CreatedAt),
		})
	}
	return out, nil
}

// DeleteConversation removes the conversation remotely. Claude performs a
// hard delete.
func (c *Claude) DeleteConversation(ctx context.Context, id string) error {
	orgID, _ := c.credentials()
	if orgID == "" {
		return &Error{Code: CodeAuthRequired, Message: "claude organization id not set"}
	}
	path := fmt.Sprintf("/organizations/%s/chat_conversations/%s", orgID, id)
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Claude) DeleteConversations(ctx context.Context, ids []string) DeleteResult {
	return batchDelete(ctx, c.DeleteConversation, ids)
}

func (c *Claude) do(ctx context.Context, method, path string, out any) error {
	orgID, sessionKey := c.credentials()
	if orgID == "" {
		return &Error{Code: CodeAuthRequired, Message: "claude organization id not set"}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return transportError(ClaudeID, err)
	}
	req.Header.Set("Accept", "application/json")
	if sessionKey != "" {
		req.AddCookie(&http.Cookie{Name: "sessionKey", Value: sessionKey})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ClaudeID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return classifyStatus(resp, ClaudeID)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Code: CodeNetworkError, Message: fmt.Sprintf("claude sent a malformed response: %v", err)}
		}
	}
	return nil
}

func parseClaudeTime(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
