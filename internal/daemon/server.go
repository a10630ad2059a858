package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/chatsync-dev/chatsync/internal/api"
	"github.com/chatsync-dev/chatsync/internal/appdir"
	"go.uber.org/zap"
)

// Server manages the HTTP server bound to the daemon's Unix domain socket.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates the command-surface server on the data directory's
// Unix domain socket.
func NewServer(
	p Params,
	logger *zap.Logger,
	syncSvc *api.SyncService,
	platformSvc *api.PlatformService,
	conversationSvc *api.ConversationService,
	backupSvc *api.BackupService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = appdir.SocketPath(p.DataDir)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","pid":%d}`+"\n", os.Getpid())
	})
	syncSvc.Register(mux)
	platformSvc.Register(mux)
	conversationSvc.Register(mux)
	backupSvc.Register(mux)

	return &Server{
		httpServer: &http.Server{Handler: api.RequestLogger(logger, mux)},
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("socket", s.socketPath))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("server stopping")
	_ = s.httpServer.Shutdown(ctx)
	_ = os.Remove(s.socketPath)
}
