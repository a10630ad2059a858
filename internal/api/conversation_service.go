package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chatsync-dev/chatsync/internal/platform"
	"github.com/chatsync-dev/chatsync/internal/store"
	intsync "github.com/chatsync-dev/chatsync/internal/sync"
	"golang.org/x/time/rate"
)

// ConversationService serves the cached conversation lists and the
// per-conversation operations that may touch the remote.
type ConversationService struct {
	db  *store.DB
	rec *intsync.Reconciler

	// detailLimiter caps how fast detail fetches can be driven through
	// the API; cached previews still count so the guard stays simple.
	detailLimiter *rate.Limiter
}

// NewConversationService creates a new conversation service.
func NewConversationService(db *store.DB, rec *intsync.Reconciler) *ConversationService {
	return &ConversationService{
		db:            db,
		rec:           rec,
		detailLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// Register mounts the conversation routes.
func (s *ConversationService) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/conversations", s.handleList)
	mux.HandleFunc("GET /v1/conversations/{platform}/{id}", s.handleDetail)
	mux.HandleFunc("DELETE /v1/conversations/{platform}/{id}", s.handleDelete)
	mux.HandleFunc("POST /v1/conversations/{platform}/delete", s.handleDeleteBatch)
}

// handleList serves the cached list, optionally filtered by a search
// query. Never hits the remote.
func (s *ConversationService) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platformID := q.Get("platform")
	if platformID == "" {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "platform query parameter required")
		return
	}

	if query := q.Get("q"); query != "" {
		limit, _ := strconv.Atoi(q.Get("limit"))
		convs, err := s.db.SearchConversations(platformID, query, limit)
		if err != nil {
			writeErrorCode(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		if convs == nil {
			convs = []store.Conversation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
		return
	}

	snap, err := s.db.Snapshot(platformID)
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if snap == nil {
		snap = &store.PlatformCache{}
	}
	if snap.Conversations == nil {
		snap.Conversations = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *ConversationService) handleDetail(w http.ResponseWriter, r *http.Request) {
	if !s.detailLimiter.Allow() {
		writeErrorCode(w, http.StatusTooManyRequests, string(platform.CodeRateLimited), "detail fetches throttled")
		return
	}

	platformID := r.PathValue("platform")
	id := r.PathValue("id")

	msgs, err := s.rec.Detail(r.Context(), platformID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	resp := map[string]any{"messages": msgs}
	if c, err := s.db.GetConversation(platformID, id); err == nil && c != nil {
		resp["conversation"] = c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ConversationService) handleDelete(w http.ResponseWriter, r *http.Request) {
	platformID := r.PathValue("platform")
	id := r.PathValue("id")
	backup := r.URL.Query().Get("backup") == "true"

	if err := s.rec.Delete(r.Context(), platformID, id, backup); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "backup": backup})
}

type deleteBatchRequest struct {
	IDs    []string `json:"ids"`
	Backup bool     `json:"backup,omitempty"`
}

func (s *ConversationService) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	platformID := r.PathValue("platform")

	var req deleteBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.IDs) == 0 {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "ids is empty")
		return
	}

	res, err := s.rec.DeleteBatch(r.Context(), platformID, req.IDs, req.Backup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
