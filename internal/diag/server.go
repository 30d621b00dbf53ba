package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// StatusSnapshot is the hub summary served by GET /api/status.
type StatusSnapshot struct {
	RadioReady       bool              `json:"radioReady"`
	Registered       bool              `json:"registered"`
	LastRemoteStatus map[string]string `json:"lastRemoteStatus"`
}

// StatusProvider is queried for the current hub summary.
type StatusProvider interface {
	Status() StatusSnapshot
}

// LogTailer is queried for the rolling event log's recent bytes.
type LogTailer interface {
	Tail(n int64) ([]byte, error)
}

// ActivityRecorder is notified of every inbound API request, so the
// scheduler's HTTP-active gate (see internal/scheduler) can defer a scene
// refresh while the companion app is actively driving the gateway through
// this surface.
type ActivityRecorder interface {
	RecordHTTPActivity()
}

const defaultLogTailBytes = 64 * 1024

// Server is the gateway's read-only diagnostics HTTP+SSE surface,
// adapted from server/server.go's mux.Router-based route table.
type Server struct {
	port       int
	hub        *Hub
	status     StatusProvider
	log        LogTailer
	activity   ActivityRecorder
	router     *mux.Router
	httpServer *http.Server
}

// New builds a Server listening on port, serving shade state from hub,
// status from status, and log tails from logTailer. activity may be nil,
// in which case inbound requests simply aren't reported anywhere.
func New(port int, hub *Hub, status StatusProvider, logTailer LogTailer, activity ActivityRecorder) *Server {
	s := &Server{
		port:     port,
		hub:      hub,
		status:   status,
		log:      logTailer,
		activity: activity,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.activityMiddleware)
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/shades", s.handleShades).Methods("GET")
	api.HandleFunc("/shades/stream", s.handleShadeStream).Methods("GET")
	api.HandleFunc("/log", s.handleLog).Methods("GET")
}

// activityMiddleware records every inbound request as recent HTTP activity
// before handing off to the matched route, mirroring server/server.go's
// loggingMiddleware wiring shape.
func (s *Server) activityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.activity != nil {
			s.activity.RecordHTTPActivity()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status.Status())
}

func (s *Server) handleShades(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.hub.Shades())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	data, err := s.log.Tail(defaultLogTailBytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

// Run starts the HTTP server and blocks until ctx is canceled, mirroring
// server/server.go's Run.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		log.Info("diag: context done, shutting down HTTP server")
		s.httpServer.Shutdown(context.Background())
	}()

	log.Infof("diag: starting diagnostics server on port %d", s.port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
