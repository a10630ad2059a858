package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chatsync-dev/chatsync/internal/store"
)

const chatgptDefaultBaseURL = "https://chatgpt.com/backend-api"

// ChatGPT talks to the ChatGPT private web API: bearer-token auth,
// native offset/limit pagination, tree-shaped conversation detail.
// Deletion is a soft delete via the visibility flag.
type ChatGPT struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// ChatGPTOptions configures the adapter. Zero values mean production defaults.
type ChatGPTOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewChatGPT creates a ChatGPT adapter.
func NewChatGPT(opts ChatGPTOptions) *ChatGPT {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = chatgptDefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ChatGPT{baseURL: baseURL, httpClient: httpClient}
}

func (c *ChatGPT) ID() string   { return ChatGPTID }
func (c *ChatGPT) Name() string { return "ChatGPT" }

func (c *ChatGPT) Hostnames() []string {
	return []string{"chatgpt.com", "chat.openai.com"}
}

func (c *ChatGPT) SetToken(credential string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(credential)
	c.mu.Unlock()
}

func (c *ChatGPT) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CheckAuth probes the conversation list with the smallest possible page.
func (c *ChatGPT) CheckAuth(ctx context.Context) AuthResult {
	if _, err := c.Conversations(ctx, 0, 1); err != nil {
		return AuthResult{OK: false, Code: CodeOf(err), Message: err.Error()}
	}
	return AuthResult{OK: true}
}

// wire types

type chatgptList struct {
	Items  []chatgptItem `json:"items"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

type chatgptItem struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	CreateTime flexTime `json:"create_time"`
	UpdateTime flexTime `json:"update_time"`
	IsStarred  bool     `json:"is_starred"`
}

type chatgptDetail struct {
	Title   string                 `json:"title"`
	Mapping map[string]chatgptNode `json:"mapping"`
}

type chatgptNode struct {
	ID       string          `json:"id"`
	Parent   string          `json:"parent"`
	Children []string        `json:"children"`
	Message  *chatgptMessage `json:"message"`
}

type chatgptMessage struct {
	ID     string `json:"id"`
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		ContentType string            `json:"content_type"`
		Parts       []json.RawMessage `json:"parts"`
	} `json:"content"`
	CreateTime flexTime `json:"create_time"`
}

// text joins the string parts of the message content. Non-string parts
// (images, tool payloads) are skipped.
func (m *chatgptMessage) text() string {
	var parts []string
	for _, raw := range m.Content.Parts {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *ChatGPT) Conversations(ctx context.Context, offset, limit int) (*Page, error) {
	var list chatgptList
	path := fmt.Sprintf("/conversations?offset=%d&limit=%d&order=updated", offset, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	page := &Page{Total: list.Total}
	for _, item := range list.Items {
		page.Conversations = append(page.Conversations, store.Conversation{
			ID:         item.ID,
			Title:      item.Title,
			CreateTime: item.CreateTime.unixMilli(),
			UpdateTime: item.UpdateTime.unixMilli(),
			Platform:   ChatGPTID,
			IsStarred:  item.IsStarred,
		})
	}
	page.HasMore = offset+len(page.Conversations) < list.Total
	return page, nil
}

func (c *ChatGPT) ConversationDetail(ctx context.Context, id string) ([]store.Message, error) {
	var detail chatgptDetail
	if err := c.do(ctx, http.MethodGet, "/conversation/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return flattenMapping(detail.Mapping), nil
}

// DeleteConversation hides the conversation remotely. ChatGPT has no hard
// delete on this endpoint; clearing is_visible is what its own UI does.
func (c *ChatGPT) DeleteConversation(ctx context.Context, id string) error {
	var result struct {
		Success bool `json:"success"`
	}
	body := map[string]bool{"is_visible": false}
	if err := c.do(ctx, http.MethodPatch, "/conversation/"+id, body, &result); err != nil {
		return err
	}
	if !result.Success {
		return &Error{Code: CodeNetworkError, Message: "chatgpt rejected the delete"}
	}
	return nil
}

func (c *ChatGPT) DeleteConversations(ctx context.Context, ids []string) DeleteResult {
	return batchDelete(ctx, c.DeleteConversation, ids)
}

func (c *ChatGPT) do(ctx context.Context, method, path string, body, out any) error {
	token := c.Token()
	if token == "" {
		return &Error{Code: CodeAuthRequired, Message: "chatgpt access token not set"}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return transportError(ChatGPTID, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ChatGPTID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return classifyStatus(resp, ChatGPTID)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Code: CodeNetworkError, Message: fmt.Sprintf("chatgpt sent a malformed response: %v", err)}
		}
	}
	return nil
}

// flexTime accepts the two timestamp shapes the ChatGPT API mixes:
// fractional epoch seconds and RFC3339 strings.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
			if parsed, err := time.Parse(layout, str); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("unrecognized timestamp %q", str)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	sec, frac := math.Modf(f)
	t.Time = time.Unix(int64(sec), int64(frac*1e9))
	return nil
}

func (t flexTime) unixMilli() int64 {
	if t.IsZero() {
		return 0
	}
	return t.Time.UnixMilli()
}
