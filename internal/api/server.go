package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

// stateProvider is the narrow slice of internal/service.Service the /ready
// and /api/info handlers need.
type stateProvider interface {
	State() types.ServiceState
}

// recordLister is the narrow slice of internal/store.Store the /api/updates
// handler needs.
type recordLister interface {
	List() []*types.StoreRecord
}

// Server is the daemon's operability HTTP surface.
type Server struct {
	mux *http.ServeMux

	storeRoot    string
	store        recordLister
	service      stateProvider
	deviceID     string
	version      string
	publicKeyPEM string
}

// New builds a Server. publicKeyPEM is the device's RSA public key in PEM
// form (see internal/authcrypto.PublicKeyPEM), empty when the daemon runs
// without authentication.
func New(storeRoot string, store recordLister, svc stateProvider, deviceID, version, publicKeyPEM string) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		storeRoot:    storeRoot,
		store:        store,
		service:      svc,
		deviceID:     deviceID,
		version:      version,
		publicKeyPEM: publicKeyPEM,
	}

	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.Handle("/metrics", telemetry.Handler())
	s.mux.HandleFunc("/api/info", s.infoHandler)
	s.mux.HandleFunc("/api/updates", s.updatesHandler)

	return s
}

// Handler returns the HTTP handler for embedding in a server or test.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server on addr; it blocks until the server stops.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

// HealthResponse is the /health liveness response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready readiness response.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// InfoResponse is the /api/info device identity response.
type InfoResponse struct {
	DeviceID    string `json:"deviceId"`
	Version     string `json:"version"`
	ControlLoop string `json:"controlLoopState"`
	PublicKey   string `json:"publicKeyPem,omitempty"`
}

// UpdatesResponse is the /api/updates list response.
type UpdatesResponse struct {
	Updates []*types.StoreRecord `json:"updates"`
}

// healthHandler is a pure liveness check: 200 as long as the process can
// answer HTTP requests at all.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
	})
}

// readyHandler reports whether the daemon is ready to do useful work: the
// store directory accepts writes and the control loop has left its dead
// startup state.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if err := probeWritable(s.storeRoot); err != nil {
		checks["store"] = "error: " + err.Error()
		ready = false
		message = "update store is not writable"
	} else {
		checks["store"] = "ok"
	}

	if s.service != nil {
		state := s.service.State()
		checks["control_loop"] = string(state)
		if state == types.ServiceStateDead {
			ready = false
			if message == "" {
				message = "control loop has not started"
			}
		}
	} else {
		checks["control_loop"] = "not initialized"
		ready = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// infoHandler reports the device's identity and current control-loop state,
// along with its RSA public key so an operator can confirm which key the
// auth server needs on file.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := types.ServiceStateDead
	if s.service != nil {
		state = s.service.State()
	}

	writeJSON(w, http.StatusOK, InfoResponse{
		DeviceID:    s.deviceID,
		Version:     s.version,
		ControlLoop: string(state),
		PublicKey:   s.publicKeyPEM,
	})
}

// updatesHandler lists every update descriptor the store knows about,
// regardless of apply state.
func (s *Server) updatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var records []*types.StoreRecord
	if s.store != nil {
		records = s.store.List()
	}
	writeJSON(w, http.StatusOK, UpdatesResponse{Updates: records})
}

// probeWritable confirms root exists and accepts a file creation, without
// leaving anything behind.
func probeWritable(root string) error {
	f, err := os.CreateTemp(root, ".ready-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
