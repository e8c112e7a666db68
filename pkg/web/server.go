// Package web serves the portrait editor over HTTP and streams editor events
// to browsers with server-sent events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shahcompbio/montage-sub000/pkg/editor"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/metrics"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/portrait"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
	"github.com/shahcompbio/montage-sub000/pkg/structure"
)

// Server represents the web server
type Server struct {
	router    *mux.Router
	editor    *editor.Editor
	publisher pubsub.Publisher
	// portraits is nil when named portrait storage is disabled.
	portraits *portrait.Store
	http      *http.Server
}

// NewServer creates a server for ed. pub feeds the event streams and
// portraits may be nil.
func NewServer(ed *editor.Editor, pub pubsub.Publisher, portraits *portrait.Store) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		editor:    ed,
		publisher: pub,
		portraits: portraits,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	s.router.Use(metricsMiddleware)

	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/nodes", s.handleNodes).Methods("GET")
	s.router.HandleFunc("/api/nodes/{id:[0-9]+}", s.handleNode).Methods("GET")
	s.router.HandleFunc("/api/nodes/{id:[0-9]+}", s.handleDeleteNode).Methods("DELETE")
	s.router.HandleFunc("/api/nodes/{id:[0-9]+}/fieldset", s.handleFieldset).Methods("GET")
	s.router.HandleFunc("/api/nodes/{id:[0-9]+}/fields/{field}", s.handleEditField).Methods("PUT")

	// specific structure routes must come before /api/structures/{name}
	s.router.HandleFunc("/api/structures/commit", s.handleCommit).Methods("POST")
	s.router.HandleFunc("/api/structures/staged", s.handleStaged).Methods("GET")
	s.router.HandleFunc("/api/structures/steps/{step:[0-9]+}/fieldset", s.handleStepFieldset).Methods("GET")
	s.router.HandleFunc("/api/structures/steps/{step:[0-9]+}/advance", s.handleAdvance).Methods("POST")
	s.router.HandleFunc("/api/structures/steps/{step:[0-9]+}/retreat", s.handleRetreat).Methods("POST")
	s.router.HandleFunc("/api/structures/steps/{step:[0-9]+}/existing/{viewID:[0-9]+}", s.handleLinkExisting).Methods("POST")
	s.router.HandleFunc("/api/structures/{name}", s.handleBeginStructure).Methods("POST")
	s.router.HandleFunc("/api/structures", s.handleDiscardStructure).Methods("DELETE")

	s.router.HandleFunc("/api/select/{id:[0-9]+}", s.handleSelect).Methods("POST")
	s.router.HandleFunc("/api/select", s.handleUnselect).Methods("DELETE")
	s.router.HandleFunc("/api/diagram", s.handleDiagram).Methods("GET")

	s.router.HandleFunc("/api/portrait", s.handleGetPortrait).Methods("GET")
	s.router.HandleFunc("/api/portrait", s.handlePutPortrait).Methods("PUT")
	s.router.HandleFunc("/api/portraits", s.handleListPortraits).Methods("GET")
	s.router.HandleFunc("/api/portraits/{name}", s.handleLoadPortrait).Methods("GET")
	s.router.HandleFunc("/api/portraits/{name}", s.handleSavePortrait).Methods("PUT")
	s.router.HandleFunc("/api/portraits/{name}", s.handleDeletePortrait).Methods("DELETE")
	s.router.HandleFunc("/api/portraits/{name}/restore", s.handleRestorePortrait).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// metricsMiddleware counts requests by route template so that node IDs do not
// explode the label space.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		rec := logging.NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.Status())
		metrics.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !pubsub.KnownTopic(topic) {
		http.Error(w, fmt.Sprintf("unknown topic %q", topic), http.StatusNotFound)
		return
	}
	if s.publisher == nil {
		http.Error(w, "event streams are disabled", http.StatusServiceUnavailable)
		return
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, _ := w.(http.Flusher)
	// initial comment establishes the connection (Safari)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "event stream closed", "topic", topic, "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// Start listens on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Info("starting web server", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error  string             `json:"error"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

// writeError maps editor errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var verr *structure.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		body.Fields = verr.Fields
	case errors.Is(err, model.ErrNodeNotFound),
		errors.Is(err, model.ErrUnknownStructure),
		errors.Is(err, portrait.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrUnknownField),
		errors.Is(err, model.ErrUnknownNodeType),
		errors.Is(err, model.ErrStepOutOfRange),
		errors.Is(err, model.ErrNoSelection),
		errors.Is(err, model.ErrInvalidPortrait),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotStaging),
		errors.Is(err, model.ErrStructureIncomplete),
		errors.Is(err, model.ErrCycle),
		errors.Is(err, model.ErrReconcileInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request error", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func pathID(r *http.Request, key string) int64 {
	// route patterns only admit digits
	id, _ := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	return id
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

var errBadRequest = errors.New("malformed request body")
