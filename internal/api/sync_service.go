package api

import (
	"net/http"

	"github.com/chatsync-dev/chatsync/internal/platform"
	"github.com/chatsync-dev/chatsync/internal/store"
	intsync "github.com/chatsync-dev/chatsync/internal/sync"
)

// SyncService exposes sync run control and observation.
type SyncService struct {
	engine   *intsync.Engine
	db       *store.DB
	registry *platform.Registry
}

// NewSyncService creates a new sync service.
func NewSyncService(engine *intsync.Engine, db *store.DB, registry *platform.Registry) *SyncService {
	return &SyncService{engine: engine, db: db, registry: registry}
}

// Register mounts the sync routes.
func (s *SyncService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sync/start", s.handleStart)
	mux.HandleFunc("POST /v1/sync/stop", s.handleStop)
	mux.HandleFunc("GET /v1/sync/status", s.handleStatus)
}

type startSyncRequest struct {
	Platform string `json:"platform"`
	Force    bool   `json:"force,omitempty"`
}

func (s *SyncService) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startSyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.StartSync(req.Platform, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

type stopSyncRequest struct {
	Platform string `json:"platform"`
}

func (s *SyncService) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopSyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	stopped := s.engine.StopSync(req.Platform)
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// SyncStatus is one platform's combined run phase and cache state.
type SyncStatus struct {
	Platform     string              `json:"platform"`
	Phase        intsync.Phase       `json:"phase"`
	Progress     *store.SyncProgress `json:"progress,omitempty"`
	TotalCount   int                 `json:"totalCount"`
	LastSyncTime int64               `json:"lastSyncTime,omitempty"`
	SyncComplete bool                `json:"syncComplete"`
	LastError    string              `json:"lastError,omitempty"`
}

func (s *SyncService) handleStatus(w http.ResponseWriter, r *http.Request) {
	platformID := r.URL.Query().Get("platform")

	var ids []string
	if platformID != "" {
		if _, ok := s.registry.Get(platformID); !ok {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown platform "+platformID)
			return
		}
		ids = []string{platformID}
	} else {
		for _, a := range s.registry.All() {
			ids = append(ids, a.ID())
		}
	}

	statuses := make([]SyncStatus, 0, len(ids))
	for _, id := range ids {
		st := SyncStatus{Platform: id, Phase: s.engine.Phase(id)}
		if snap, err := s.db.Snapshot(id); err == nil && snap != nil {
			st.TotalCount = snap.TotalCount
			st.LastSyncTime = snap.LastSyncTime
			st.SyncComplete = snap.SyncComplete
		}
		if p, err := s.db.Progress(id); err == nil {
			st.Progress = p
		}
		if msg, err := s.db.SyncError(id); err == nil {
			st.LastError = msg
		}
		statuses = append(statuses, st)
	}

	if platformID != "" {
		writeJSON(w, http.StatusOK, statuses[0])
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": statuses})
}
