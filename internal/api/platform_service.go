package api

import (
	"net/http"

	"github.com/chatsync-dev/chatsync/internal/credential"
	"github.com/chatsync-dev/chatsync/internal/platform"
	intsync "github.com/chatsync-dev/chatsync/internal/sync"
)

// PlatformService exposes the platform catalog, live auth probing and
// credential capture.
type PlatformService struct {
	registry *platform.Registry
	creds    *credential.Store
	engine   *intsync.Engine
}

// NewPlatformService creates a new platform service.
func NewPlatformService(registry *platform.Registry, creds *credential.Store, engine *intsync.Engine) *PlatformService {
	return &PlatformService{registry: registry, creds: creds, engine: engine}
}

// Register mounts the platform and credential routes.
func (s *PlatformService) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/platforms", s.handleList)
	mux.HandleFunc("GET /v1/platforms/{platform}/auth", s.handleAuth)
	mux.HandleFunc("POST /v1/credentials", s.handleSetCredential)
	mux.HandleFunc("GET /v1/credentials/status", s.handleCredentialStatus)
	mux.HandleFunc("DELETE /v1/credentials/{platform}", s.handleClearCredential)
}

// PlatformInfo is the catalog entry for one supported platform.
type PlatformInfo struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Hostnames     []string      `json:"hostnames"`
	Authenticated bool          `json:"authenticated"`
	Phase         intsync.Phase `json:"phase"`
}

func (s *PlatformService) handleList(w http.ResponseWriter, _ *http.Request) {
	var out []PlatformInfo
	for _, a := range s.registry.All() {
		_, hasCred := s.creds.Get(a.ID())
		out = append(out, PlatformInfo{
			ID:            a.ID(),
			Name:          a.Name(),
			Hostnames:     a.Hostnames(),
			Authenticated: hasCred,
			Phase:         s.engine.Phase(a.ID()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": out})
}

// handleAuth runs a live auth probe against the remote. No credential
// for the platform resolves to an AUTH_REQUIRED result, not an error.
func (s *PlatformService) handleAuth(w http.ResponseWriter, r *http.Request) {
	platformID := r.PathValue("platform")
	adapter, ok := s.registry.Get(platformID)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown platform "+platformID)
		return
	}

	cred, ok := s.creds.Get(platformID)
	if !ok {
		writeJSON(w, http.StatusOK, platform.AuthResult{
			OK:      false,
			Code:    platform.CodeAuthRequired,
			Message: "no credential captured this session",
		})
		return
	}
	adapter.SetToken(cred)
	writeJSON(w, http.StatusOK, adapter.CheckAuth(r.Context()))
}

type setCredentialRequest struct {
	Platform   string `json:"platform,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	Credential string `json:"credential"`
}

// handleSetCredential accepts a credential addressed either by platform
// id or by the hostname it was captured from.
func (s *PlatformService) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	var req setCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	platformID := req.Platform
	if platformID == "" && req.Hostname != "" {
		if a, ok := s.registry.ByHostname(req.Hostname); ok {
			platformID = a.ID()
		}
	}
	if _, ok := s.registry.Get(platformID); !ok {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "credential matches no known platform")
		return
	}
	if req.Credential == "" {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "credential is empty")
		return
	}

	s.creds.Set(platformID, req.Credential)
	preview, _ := s.creds.Preview(platformID)
	writeJSON(w, http.StatusOK, map[string]any{
		"platform": platformID,
		"preview":  preview,
	})
}

// CredentialStatus reports presence without exposing the secret.
type CredentialStatus struct {
	Platform string `json:"platform"`
	Present  bool   `json:"present"`
	Preview  string `json:"preview,omitempty"`
}

func (s *PlatformService) handleCredentialStatus(w http.ResponseWriter, _ *http.Request) {
	var out []CredentialStatus
	for _, a := range s.registry.All() {
		preview, ok := s.creds.Preview(a.ID())
		out = append(out, CredentialStatus{Platform: a.ID(), Present: ok, Preview: preview})
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

func (s *PlatformService) handleClearCredential(w http.ResponseWriter, r *http.Request) {
	platformID := r.PathValue("platform")
	if _, ok := s.registry.Get(platformID); !ok {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown platform "+platformID)
		return
	}
	s.creds.Clear(platformID)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
