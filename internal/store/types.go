package store

// Message roles in the unified schema.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is a remote conversation in unified form. IDs are opaque,
// assigned by the remote service, unique within a platform.
// Snippet and MessageCount are enriched lazily on the first detail fetch.
type Conversation struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Summary      string `json:"summary,omitempty"`
	CreateTime   int64  `json:"createTime"`
	UpdateTime   int64  `json:"updateTime"`
	Platform     string `json:"platform"`
	IsStarred    bool   `json:"isStarred,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
}

// Message is a single conversation message in unified form.
type Message struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	CreateTime int64  `json:"createTime"`
}

// PlatformCache is the sync engine's durable checkpoint for one platform.
// SyncComplete=false means the last run was aborted, failed or is still
// in progress; the conversation list is usable but not final.
type PlatformCache struct {
	Conversations []Conversation `json:"conversations"`
	TotalCount    int            `json:"totalCount"`
	LastSyncTime  int64          `json:"lastSyncTime"`
	SyncComplete  bool           `json:"syncComplete"`
}

// SyncProgress exists only while a run is active; its presence is the
// signal that a sync is in flight.
type SyncProgress struct {
	Loaded int `json:"loaded"`
	Total  int `json:"total"`
}

// Backup is a point-in-time copy of a conversation, with a lifetime
// independent from the live conversation it was copied from.
type Backup struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Platform   string    `json:"platform"`
	Messages   []Message `json:"messages,omitempty"`
	BackupTime int64     `json:"backupTime"`
}

// Preview is a cached detail-fetch result, safe to discard at any time.
type Preview struct {
	Messages []Message `json:"messages"`
	CachedAt int64     `json:"cachedAt"`
}
