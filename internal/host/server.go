package host

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/goteamwork/roomsync/internal/logging"
)

// Server exposes the core over the REST+SSE API.
type Server struct {
	core   *Core
	logger logging.Logger
	http   *http.Server
}

func NewServer(core *Core, addr string, logger logging.Logger) *Server {
	s := &Server{core: core, logger: logger}

	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/rooms", s.handleListRooms).Methods(http.MethodGet)
	api.HandleFunc("/invite", s.auth(s.handleInvite)).Methods(http.MethodPost)
	api.HandleFunc("/invite/accept", s.auth(s.handleAcceptInvite)).Methods(http.MethodPost)
	api.HandleFunc("/join", s.auth(s.handleJoin)).Methods(http.MethodPost)
	api.HandleFunc("/join/request", s.auth(s.handleJoinRequest)).Methods(http.MethodPost)
	api.HandleFunc("/join/approve", s.auth(s.handleApproveJoin)).Methods(http.MethodPost)
	api.HandleFunc("/chat", s.auth(s.handleSendChat)).Methods(http.MethodPost)
	api.HandleFunc("/chat/{roomId}", s.auth(s.handleChatHistory)).Methods(http.MethodGet)
	api.HandleFunc("/operations/{roomId}", s.auth(s.handleOperations)).Methods(http.MethodGet)
	api.HandleFunc("/clipboard", s.auth(s.handleShareClipboard)).Methods(http.MethodPost)
	api.HandleFunc("/clipboard/files", s.auth(s.handleSavePendingFiles)).Methods(http.MethodPost)
	api.HandleFunc("/clipboard/{opId}/zip", s.auth(s.handleUploadArchive)).Methods(http.MethodPost)
	api.HandleFunc("/download/{opId}", s.auth(s.handleDownload)).Methods(http.MethodGet)
	api.HandleFunc("/leave", s.auth(s.handleLeave)).Methods(http.MethodPost)
	api.HandleFunc("/sse", s.handleSSE).Methods(http.MethodGet)

	// Wrapped outside the router so preflight OPTIONS requests, which
	// never match the method-restricted routes, still get CORS headers.
	s.http = &http.Server{Addr: addr, Handler: corsMiddleware(r)}
	return s
}

// Handler returns the routed handler, for tests driving the API with
// httptest instead of a listening socket.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "api server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
