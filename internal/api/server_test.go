package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/citysense/internal/db"
	"github.com/banshee-data/citysense/internal/envstate"
	"github.com/banshee-data/citysense/internal/events"
	"github.com/banshee-data/citysense/internal/monitoring"
	"github.com/banshee-data/citysense/internal/testutil"
	"github.com/google/go-cmp/cmp"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func setupTestServer(t *testing.T, records ...events.Record) (*Server, *db.DB, *envstate.Writer) {
	t.Helper()
	dbInst, err := db.NewDB(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { dbInst.Close() })

	for _, r := range records {
		if err := dbInst.Append(context.Background(), r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	w, r := envstate.New(events.Outdoors)
	return NewServer(dbInst, r), dbInst, w
}

var sample = []events.Record{
	events.MotionEvent{Magnitude: 9900, Severity: events.SeverityAlert, Light: 1200, Environment: events.Outdoors, At: 1500 * time.Millisecond},
	events.EnvironmentEvent{Light: 3500, At: 2 * time.Second},
	events.MotionEvent{Magnitude: 18000, Severity: events.SeverityCritical, Light: 3600, Environment: events.Tunnel, At: 2500 * time.Millisecond},
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	w := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(w, testutil.NewTestRequest(method, path))
	return w
}

func TestIndexPage(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := serve(s, http.MethodGet, "/")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	for _, want := range []string{"<h1>CitySense Node</h1>", "href='/log'", "href='/clear'"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("index missing %q", want)
		}
	}

	testutil.AssertStatusCode(t, serve(s, http.MethodGet, "/nope").Code, http.StatusNotFound)
	testutil.AssertStatusCode(t, serve(s, http.MethodPost, "/").Code, http.StatusMethodNotAllowed)
}

func TestDownloadLog(t *testing.T) {
	s, _, _ := setupTestServer(t, sample...)

	w := serve(s, http.MethodGet, "/log")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="citysense_logs.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	want := "Time(ms),Shock,Light\n1500,9900,1200\n2000,0,3500\n2500,18000,3600\n"
	if diff := cmp.Diff(want, w.Body.String()); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestClearLog(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			s, _, _ := setupTestServer(t, sample...)

			w := serve(s, method, "/clear")
			testutil.AssertStatusCode(t, w.Code, http.StatusOK)
			if w.Body.String() != "Logs Cleared!" {
				t.Errorf("body = %q", w.Body.String())
			}

			w = serve(s, http.MethodGet, "/log")
			if w.Body.String() != events.CSVHeader+"\n" {
				t.Errorf("log after clear = %q", w.Body.String())
			}
		})
	}

	s, _, _ := setupTestServer(t)
	testutil.AssertStatusCode(t, serve(s, http.MethodDelete, "/clear").Code, http.StatusMethodNotAllowed)
}

func TestListEvents(t *testing.T) {
	s, _, _ := setupTestServer(t, sample...)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantUptime []int64
	}{
		{"default", "/api/events", http.StatusOK, []int64{2500, 2000, 1500}},
		{"limited", "/api/events?limit=1", http.StatusOK, []int64{2500}},
		{"zero", "/api/events?limit=0", http.StatusBadRequest, nil},
		{"too many", "/api/events?limit=5001", http.StatusBadRequest, nil},
		{"not a number", "/api/events?limit=ten", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, http.MethodGet, tt.path)
			testutil.AssertStatusCode(t, w.Code, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got []db.StoredEvent
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			var uptimes []int64
			for _, e := range got {
				uptimes = append(uptimes, e.UptimeMs)
			}
			if diff := cmp.Diff(tt.wantUptime, uptimes); diff != "" {
				t.Errorf("uptimes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListEventsEmpty(t *testing.T) {
	s, _, _ := setupTestServer(t)
	w := serve(s, http.MethodGet, "/api/events")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
	testutil.AssertStatusCode(t, serve(s, http.MethodPost, "/api/events").Code, http.StatusMethodNotAllowed)
}

func TestShowState(t *testing.T) {
	s, _, env := setupTestServer(t)
	env.PublishLight(3500)
	env.Set(events.Tunnel)

	w := serve(s, http.MethodGet, "/api/state")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]interface{}{"environment": "tunnel", "light": 3500.0, "transitions": 1.0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestShowStats(t *testing.T) {
	s, _, _ := setupTestServer(t, append(sample, sample[0])...)

	w := serve(s, http.MethodGet, "/api/stats")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got ShockStats
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := ShockStats{
		Counts:  map[string]int{"alert": 2, "critical": 1, "environment": 1},
		Samples: 3,
		Mean:    12600,
		P50:     9900,
		P95:     18000,
		Max:     18000,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSummariseEmpty(t *testing.T) {
	got := Summarise(db.Stats{})
	if diff := cmp.Diff(ShockStats{Counts: map[string]int{}}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestShowChart(t *testing.T) {
	s, _, _ := setupTestServer(t, sample...)

	w := serve(s, http.MethodGet, "/chart")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{"Road shocks", "events=2"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("chart missing %q", want)
		}
	}
}

type failingStore struct{}

var errStore = errors.New("disk full")

func (failingStore) Events(int) ([]db.StoredEvent, error) { return nil, errStore }
func (failingStore) WriteCSV(io.Writer) error             { return errStore }
func (failingStore) Clear() error                         { return errStore }
func (failingStore) Stats() (db.Stats, error)             { return db.Stats{}, errStore }

func TestStoreFailures(t *testing.T) {
	_, r := envstate.New(events.Outdoors)
	s := NewServer(failingStore{}, r)

	for _, path := range []string{"/log", "/clear", "/api/events", "/api/stats", "/chart"} {
		w := serve(s, http.MethodGet, path)
		testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
		if !strings.Contains(w.Body.String(), "disk full") {
			t.Errorf("%s body = %q", path, w.Body.String())
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state?x=1", nil))

	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
	if !strings.Contains(buf.String(), "418") || !strings.Contains(buf.String(), "/api/state?x=1") {
		t.Errorf("log line = %q", buf.String())
	}
}

func TestStatusCodeColor(t *testing.T) {
	tests := map[int]string{
		200: colorBoldGreen + "200" + colorReset,
		302: colorYellow + "302" + colorReset,
		404: colorBoldRed + "404" + colorReset,
		503: colorBoldRed + "503" + colorReset,
		101: "101",
	}
	for code, want := range tests {
		if got := statusCodeColor(code); got != want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", code, got, want)
		}
	}
}
