// Package platform holds the per-service adapters that translate each
// remote chat service's private web API into one unified schema.
package platform

import (
	"context"

	"github.com/chatsync-dev/chatsync/internal/store"
)

// Platform ids.
const (
	ChatGPTID = "chatgpt"
	ClaudeID  = "claude"
)

// Page is one page of conversations in unified form, most recently
// updated first. HasMore follows offset + len(Conversations) < Total.
type Page struct {
	Conversations []store.Conversation
	Total         int
	HasMore       bool
}

// AuthResult is the structured outcome of a cheap auth probe. CheckAuth
// never returns an error; every failure is folded into this.
type AuthResult struct {
	OK      bool   `json:"ok"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeleteResult reports a best-effort batch delete.
type DeleteResult struct {
	Succeeded []string `json:"success"`
	Failed    []string `json:"failed"`
}

// Adapter is the capability contract every platform variant implements.
// Implementations whose remote API has no native pagination paginate
// client-side so the sync engine cannot tell the difference.
type Adapter interface {
	// ID returns the platform identifier ("chatgpt", "claude").
	ID() string
	// Name returns the display name.
	Name() string
	// Hostnames returns the hostnames the registry resolves to this adapter.
	Hostnames() []string

	// SetToken stores the opaque credential for this platform. For a
	// cookie-authenticated platform this may be a derived scoping
	// identifier rather than a secret; the adapter reinterprets whatever
	// it is handed.
	SetToken(credential string)
	// Token returns the stored credential, "" if unset.
	Token() string

	// CheckAuth performs a cheap remote call to classify the session as
	// usable, auth-required or unreachable.
	CheckAuth(ctx context.Context) AuthResult

	// Conversations returns one page, most recently updated first.
	Conversations(ctx context.Context, offset, limit int) (*Page, error)

	// ConversationDetail fetches a conversation's messages flattened
	// into chronological order.
	ConversationDetail(ctx context.Context, id string) ([]store.Message, error)

	// DeleteConversation deletes one conversation remotely. Whether that
	// is a soft or hard delete is the adapter's business.
	DeleteConversation(ctx context.Context, id string) error

	// DeleteConversations deletes sequentially, best-effort; one item's
	// failure never aborts the batch.
	DeleteConversations(ctx context.Context, ids []string) DeleteResult
}

// batchDelete implements the shared best-effort batch semantics.
func batchDelete(ctx context.Context, del func(context.Context, string) error, ids []string) DeleteResult {
	res := DeleteResult{Succeeded: []string{}, Failed: []string{}}
	for _, id := range ids {
		if err := del(ctx, id); err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}
