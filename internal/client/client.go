// Package client is the CLI side of the command surface: a typed HTTP
// client over the daemon's Unix domain socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chatsync-dev/chatsync/internal/api"
	"github.com/chatsync-dev/chatsync/internal/platform"
	"github.com/chatsync-dev/chatsync/internal/store"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("daemon returned HTTP %d", e.Status)
}

// Client talks to a running daemon.
type Client struct {
	http       *http.Client
	socketPath string
}

// New creates a client for the daemon at the given socket path.
func New(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			// Detail fetches and batch deletes hit the remote; give them room.
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	// The host is ignored; the transport always dials the socket.
	req, err := http.NewRequestWithContext(ctx, method, "http://chatsyncd"+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.socketPath, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HealthInfo identifies a running daemon.
type HealthInfo struct {
	Status string `json:"status"`
	PID    int    `json:"pid"`
}

func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var h HealthInfo
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Platforms(ctx context.Context) ([]api.PlatformInfo, error) {
	var resp struct {
		Platforms []api.PlatformInfo `json:"platforms"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/platforms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Platforms, nil
}

func (c *Client) CheckAuth(ctx context.Context, platformID string) (*platform.AuthResult, error) {
	var res platform.AuthResult
	if err := c.do(ctx, http.MethodGet, "/v1/platforms/"+url.PathEscape(platformID)+"/auth", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetCredential pushes a credential addressed by platform id or by the
// hostname it was captured from. Returns the resolved platform and a
// masked preview.
func (c *Client) SetCredential(ctx context.Context, platformID, hostname, cred string) (string, string, error) {
	var resp struct {
		Platform string `json:"platform"`
		Preview  string `json:"preview"`
	}
	body := map[string]string{"credential": cred}
	if platformID != "" {
		body["platform"] = platformID
	}
	if hostname != "" {
		body["hostname"] = hostname
	}
	if err := c.do(ctx, http.MethodPost, "/v1/credentials", body, &resp); err != nil {
		return "", "", err
	}
	return resp.Platform, resp.Preview, nil
}

func (c *Client) CredentialStatus(ctx context.Context) ([]api.CredentialStatus, error) {
	var resp struct {
		Credentials []api.CredentialStatus `json:"credentials"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/credentials/status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Credentials, nil
}

func (c *Client) ClearCredential(ctx context.Context, platformID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/credentials/"+url.PathEscape(platformID), nil, nil)
}

func (c *Client) StartSync(ctx context.Context, platformID string, force bool) (string, error) {
	var resp struct {
		Result string `json:"result"`
	}
	body := map[string]any{"platform": platformID, "force": force}
	if err := c.do(ctx, http.MethodPost, "/v1/sync/start", body, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

func (c *Client) StopSync(ctx context.Context, platformID string) (bool, error) {
	var resp struct {
		Stopped bool `json:"stopped"`
	}
	body := map[string]any{"platform": platformID}
	if err := c.do(ctx, http.MethodPost, "/v1/sync/stop", body, &resp); err != nil {
		return false, err
	}
	return resp.Stopped, nil
}

func (c *Client) SyncStatus(ctx context.Context, platformID string) (*api.SyncStatus, error) {
	var st api.SyncStatus
	if err := c.do(ctx, http.MethodGet, "/v1/sync/status?platform="+url.QueryEscape(platformID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) SyncStatusAll(ctx context.Context) ([]api.SyncStatus, error) {
	var resp struct {
		Platforms []api.SyncStatus `json:"platforms"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sync/status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Platforms, nil
}

func (c *Client) Conversations(ctx context.Context, platformID string) (*store.PlatformCache, error) {
	var snap store.PlatformCache
	if err := c.do(ctx, http.MethodGet, "/v1/conversations?platform="+url.QueryEscape(platformID), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) SearchConversations(ctx context.Context, platformID, query string, limit int) ([]store.Conversation, error) {
	var resp struct {
		Conversations []store.Conversation `json:"conversations"`
	}
	path := "/v1/conversations?platform=" + url.QueryEscape(platformID) +
		"&q=" + url.QueryEscape(query)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ConversationDetail is a conversation plus its flattened messages.
type ConversationDetail struct {
	Conversation *store.Conversation `json:"conversation,omitempty"`
	Messages     []store.Message     `json:"messages"`
}

func (c *Client) ConversationDetail(ctx context.Context, platformID, id string) (*ConversationDetail, error) {
	var d ConversationDetail
	path := "/v1/conversations/" + url.PathEscape(platformID) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeleteConversation(ctx context.Context, platformID, id string, backup bool) error {
	path := "/v1/conversations/" + url.PathEscape(platformID) + "/" + url.PathEscape(id)
	if backup {
		path += "?backup=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) DeleteConversations(ctx context.Context, platformID string, ids []string, backup bool) (*platform.DeleteResult, error) {
	var res platform.DeleteResult
	body := map[string]any{"ids": ids, "backup": backup}
	path := "/v1/conversations/" + url.PathEscape(platformID) + "/delete"
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CreateBackup(ctx context.Context, platformID, id string) (*store.Backup, error) {
	var b store.Backup
	path := "/v1/backups/" + url.PathEscape(platformID) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPost, path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) Backups(ctx context.Context, platformID string) ([]store.Backup, error) {
	var resp struct {
		Backups []store.Backup `json:"backups"`
	}
	path := "/v1/backups"
	if platformID != "" {
		path += "?platform=" + url.QueryEscape(platformID)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Backups, nil
}

func (c *Client) BackupDetail(ctx context.Context, platformID, id string) (*store.Backup, error) {
	var b store.Backup
	path := "/v1/backups/" + url.PathEscape(platformID) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) DeleteBackup(ctx context.Context, platformID, id string) error {
	path := "/v1/backups/" + url.PathEscape(platformID) + "/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
