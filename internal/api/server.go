// Package api serves the node's event log and live state over HTTP: the
// legacy download and clear pages plus JSON and chart views.
package api

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/citysense/internal/db"
	"github.com/banshee-data/citysense/internal/envstate"
	"github.com/banshee-data/citysense/internal/httputil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// LogFilename is the name browsers save the CSV download under.
const LogFilename = "citysense_logs.csv"

// maxEventsLimit caps /api/events?limit.
const maxEventsLimit = 5000

// Store is the part of the event log the server reads and clears.
type Store interface {
	Events(limit int) ([]db.StoredEvent, error)
	WriteCSV(w io.Writer) error
	Clear() error
	Stats() (db.Stats, error)
}

type Server struct {
	store Store
	env   envstate.Reader
}

func NewServer(store Store, env envstate.Reader) *Server {
	return &Server{store: store, env: env}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.showIndex)
	mux.HandleFunc("/log", s.downloadLog)
	mux.HandleFunc("/clear", s.clearLog)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/chart", s.showChart)
	return mux
}

const indexPage = `<h1>CitySense Node</h1>` +
	`<p><a href='/log'><button style='font-size:20px'>Download Logs</button></a></p>` +
	`<p><a href='/clear'><button style='font-size:20px;color:red'>Clear Logs</button></a></p>` +
	`<p><a href='/chart'>Shock chart</a> | <a href='/api/state'>State</a> | <a href='/api/stats'>Stats</a></p>`

func (s *Server) showIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, indexPage)
}

func (s *Server) downloadLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// buffer so that a failed query still gets a clean 500
	var buf bytes.Buffer
	if err := s.store.WriteCSV(&buf); err != nil {
		http.Error(w, fmt.Sprintf("Failed to export log: %v", err), http.StatusInternalServerError)
		return
	}
	httputil.WriteAttachment(w, "text/csv", LogFilename, buf.Bytes())
}

func (s *Server) clearLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.store.Clear(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to clear log: %v", err), http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Logs Cleared!")
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxEventsLimit {
			httputil.BadRequest(w, fmt.Sprintf("Invalid 'limit' parameter: must be 1-%d", maxEventsLimit))
			return
		}
		limit = parsed
	}

	events, err := s.store.Events(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []db.StoredEvent{}
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.env.Snapshot())
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st, err := s.store.Stats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, Summarise(st))
}
