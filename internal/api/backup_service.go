package api

import (
	"net/http"

	"github.com/chatsync-dev/chatsync/internal/store"
	intsync "github.com/chatsync-dev/chatsync/internal/sync"
)

// BackupService manages point-in-time conversation backups.
type BackupService struct {
	rec *intsync.Reconciler
}

// NewBackupService creates a new backup service.
func NewBackupService(rec *intsync.Reconciler) *BackupService {
	return &BackupService{rec: rec}
}

// Register mounts the backup routes.
func (s *BackupService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/backups/{platform}/{id}", s.handleCreate)
	mux.HandleFunc("GET /v1/backups", s.handleList)
	mux.HandleFunc("GET /v1/backups/{platform}/{id}", s.handleGet)
	mux.HandleFunc("DELETE /v1/backups/{platform}/{id}", s.handleDelete)
}

func (s *BackupService) handleCreate(w http.ResponseWriter, r *http.Request) {
	b, err := s.rec.Backup(r.Context(), r.PathValue("platform"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *BackupService) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.rec.Backups(r.URL.Query().Get("platform"))
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if list == nil {
		list = []store.Backup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": list})
}

func (s *BackupService) handleGet(w http.ResponseWriter, r *http.Request) {
	b, err := s.rec.BackupDetail(r.PathValue("platform"), r.PathValue("id"))
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if b == nil {
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no such backup")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *BackupService) handleDelete(w http.ResponseWriter, r *http.Request) {
	ok, err := s.rec.DeleteBackup(r.PathValue("platform"), r.PathValue("id"))
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !ok {
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no such backup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
