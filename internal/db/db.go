package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/citysense/internal/events"
	"github.com/banshee-data/citysense/internal/monitoring"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Tagged("db")

// DB is the node's event log. Every row carries the id of the boot session
// that wrote it.
type DB struct {
	*sql.DB

	path      string
	sessionID string
	// appendMu serialises Append calls from the light and motion loops.
	appendMu sync.Mutex
}

// getMigrationsFS returns the embedded migrations rooted at the directory
// holding the .sql files.
func getMigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

// OpenDB opens the database and applies connection pragmas without touching
// the schema. The migrate subcommand uses it so that it manages the schema
// itself.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas in force and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{DB: sqlDB, path: path, sessionID: uuid.New().String()}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrations, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SessionID identifies the rows written by this process.
func (db *DB) SessionID() string { return db.sessionID }

// Append implements events.Sink.
func (db *DB) Append(ctx context.Context, r events.Record) error {
	if err := events.Validate(r); err != nil {
		return err
	}

	var (
		shock    int
		severity sql.NullString
		env      = events.Tunnel
	)
	if m, ok := r.(events.MotionEvent); ok {
		shock = m.Magnitude
		severity = sql.NullString{String: m.Severity.String(), Valid: true}
		env = m.Environment
	}

	db.appendMu.Lock()
	defer db.appendMu.Unlock()
	_, err := db.ExecContext(ctx,
		`INSERT INTO road_events (session_id, kind, uptime_ms, shock, light, severity, environment)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		db.sessionID, string(r.Kind()), r.Uptime().Milliseconds(), shock, r.LightLevel(), severity, env.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", r.Kind(), err)
	}
	return nil
}

// StoredEvent is one row of road_events.
type StoredEvent struct {
	ID          int64       `json:"event_id"`
	SessionID   string      `json:"session_id"`
	Kind        events.Kind `json:"kind"`
	UptimeMs    int64       `json:"uptime_ms"`
	Shock       int         `json:"shock"`
	Light       uint32      `json:"light"`
	Severity    string      `json:"severity,omitempty"`
	Environment string      `json:"environment"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Record converts the row back into a typed record.
func (e StoredEvent) Record() (events.Record, error) {
	at := time.Duration(e.UptimeMs) * time.Millisecond
	switch e.Kind {
	case events.KindEnvironment:
		return events.EnvironmentEvent{Light: e.Light, At: at}, nil
	case events.KindMotion:
		sev, err := events.ParseSeverity(e.Severity)
		if err != nil {
			return nil, err
		}
		env, err := events.ParseEnvironment(e.Environment)
		if err != nil {
			return nil, err
		}
		return events.MotionEvent{Magnitude: e.Shock, Severity: sev, Light: e.Light, Environment: env, At: at}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", e.Kind)
}

const selectEvents = `SELECT event_id, session_id, kind, uptime_ms, shock, light,
		COALESCE(severity, ''), environment, CAST(strftime('%s', recorded_at) AS INTEGER)
	FROM road_events`

func scanEvents(rows *sql.Rows) ([]StoredEvent, error) {
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			e        StoredEvent
			kind     string
			recorded int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.UptimeMs, &e.Shock, &e.Light,
			&e.Severity, &e.Environment, &recorded); err != nil {
			return nil, err
		}
		e.Kind = events.Kind(kind)
		e.RecordedAt = time.Unix(recorded, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Events returns up to limit rows, newest first. A non-positive limit means
// 500.
func (db *DB) Events(limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(selectEvents+` ORDER BY event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// AllEvents returns every row in the order it was written.
func (db *DB) AllEvents() ([]StoredEvent, error) {
	rows, err := db.Query(selectEvents + ` ORDER BY event_id ASC`)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Clear deletes every row.
func (db *DB) Clear() error {
	db.appendMu.Lock()
	defer db.appendMu.Unlock()
	if _, err := db.Exec(`DELETE FROM road_events`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	logf("event log cleared")
	return nil
}

// WriteCSV writes the log in the legacy Time(ms),Shock,Light layout, oldest
// first. Environment rows carry shock 0.
func (db *DB) WriteCSV(w io.Writer) error {
	all, err := db.AllEvents()
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Time(ms)", "Shock", "Light"}); err != nil {
		return err
	}
	for _, e := range all {
		if err := cw.Write([]string{
			strconv.FormatInt(e.UptimeMs, 10),
			strconv.Itoa(e.Shock),
			strconv.FormatUint(uint64(e.Light), 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Stats is the raw material for shock summaries.
type Stats struct {
	// Counts is keyed by severity for motion rows and "environment" for
	// tunnel entries.
	Counts map[string]int
	// Magnitudes of motion events, in insertion order.
	Magnitudes []float64
	// Uptimes (ms) matching Magnitudes.
	Uptimes []float64
}

// Stats loads every motion magnitude and the per-class counts.
func (db *DB) Stats() (Stats, error) {
	st := Stats{Counts: map[string]int{}}

	rows, err := db.Query(`SELECT COALESCE(severity, kind), COUNT(*) FROM road_events GROUP BY 1`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.Counts[class] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = db.Query(`SELECT uptime_ms, shock FROM road_events WHERE kind = 'motion' ORDER BY event_id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var uptime, shock int64
		if err := rows.Scan(&uptime, &shock); err != nil {
			return st, err
		}
		st.Uptimes = append(st.Uptimes, float64(uptime))
		st.Magnitudes = append(st.Magnitudes, float64(shock))
	}
	return st, rows.Err()
}

// AttachAdminRoutes mounts tailsql and an on-demand backup under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "CitySense event log",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the event log now", http.HandlerFunc(db.serveBackup))
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	tmp, err := os.CreateTemp("", fmt.Sprintf("citysense-backup-%d-*.db", time.Now().Unix()))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	backupPath := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses to overwrite an existing file
	os.Remove(backupPath)

	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		logf("backup download interrupted: %v", err)
	}
}
