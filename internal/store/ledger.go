package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/ancestra/internal/model"
)

const ledgerSchemaVersion = 1

const ledgerSchemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_state (
	person_id   TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	attempt_id  TEXT NOT NULL DEFAULT '',
	exported_at TEXT,
	stale       INTEGER NOT NULL DEFAULT 0,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (person_id, run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_stage_state_status ON stage_state(status);
`

// ErrLedgerSchemaMismatch means the database was written by another version.
var ErrLedgerSchemaMismatch = errors.New("ledger schema version mismatch")

// TransitionError is a rejected stage status change.
type TransitionError struct {
	Stage model.Stage
	From  model.StageStatus
	To    model.StageStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Stage, e.From, e.To)
}

// StageState is the durable state of one stage of one run.
type StageState struct {
	Ref        RunRef
	Stage      model.Stage
	Status     model.StageStatus
	Error      string
	AttemptID  string
	ExportedAt *time.Time
	// Stale marks a complete stage whose upstream was redone afterwards.
	Stale     bool
	UpdatedAt time.Time
}

// AwaitingImport reports whether a prompt was exported and no result has
// landed since.
func (s StageState) AwaitingImport() bool {
	return s.ExportedAt != nil && s.Status != model.StatusComplete && s.Status != model.StatusProcessing
}

// Ledger stores stage states in sqlite so pending work survives restarts.
type Ledger struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps modernc's busy handling simple.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Ledger{db: db, path: path, now: time.Now}
	if err := l.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string { return l.path }

// Close closes the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) initSchema(ctx context.Context) error {
	var tableExists int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, ledgerSchemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", ledgerSchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != ledgerSchemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrLedgerSchemaMismatch, version, ledgerSchemaVersion, l.path)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getState(ctx context.Context, q querier, ref RunRef, stage model.Stage) (StageState, error) {
	st := StageState{Ref: ref, Stage: stage, Status: model.StatusPending}
	var (
		status, updated string
		exported        sql.NullString
		stale           int
	)
	err := q.QueryRowContext(ctx, `SELECT status, error, attempt_id, exported_at, stale, updated_at
		FROM stage_state WHERE person_id = ? AND run_id = ? AND stage = ?`,
		ref.PersonID, ref.RunID, string(stage),
	).Scan(&status, &st.Error, &st.AttemptID, &exported, &stale, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return StageState{}, fmt.Errorf("read %s state: %w", stage, err)
	}
	st.Status = model.StageStatus(status)
	st.Stale = stale != 0
	st.UpdatedAt = parseTime(updated)
	if exported.Valid && exported.String != "" {
		t := parseTime(exported.String)
		st.ExportedAt = &t
	}
	return st, nil
}

// Get returns a stage's state. A stage never touched is pending.
func (l *Ledger) Get(ctx context.Context, ref RunRef, stage model.Stage) (StageState, error) {
	return getState(ctx, l.db, ref, stage)
}

// States returns all stages of a run in pipeline order.
func (l *Ledger) States(ctx context.Context, ref RunRef) ([]StageState, error) {
	out := make([]StageState, 0, len(model.Stages))
	for _, stage := range model.Stages {
		st, err := l.Get(ctx, ref, stage)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Transition moves a stage to status to, checking the move is allowed.
// Entering processing records attemptID. Completing clears error and stale.
// errMsg is stored on error.
func (l *Ledger) Transition(ctx context.Context, ref RunRef, stage model.Stage, to model.StageStatus, attemptID, errMsg string) (StageState, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return StageState{}, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getState(ctx, tx, ref, stage)
	if err != nil {
		return StageState{}, err
	}
	if !model.CanTransition(cur.Status, to) {
		return cur, &TransitionError{Stage: stage, From: cur.Status, To: to}
	}

	next := cur
	next.Status = to
	next.UpdatedAt = l.now().UTC()
	switch to {
	case model.StatusProcessing:
		next.AttemptID = attemptID
		next.Error = ""
	case model.StatusComplete:
		next.Error = ""
		next.Stale = false
		next.ExportedAt = nil
	case model.StatusError:
		next.Error = errMsg
	}

	if err := upsert(ctx, tx, next); err != nil {
		return StageState{}, err
	}
	if err := tx.Commit(); err != nil {
		return StageState{}, fmt.Errorf("commit transition: %w", err)
	}
	return next, nil
}

// MarkExported records that a prompt for the stage was handed out. The
// status is left as it is.
func (l *Ledger) MarkExported(ctx context.Context, ref RunRef, stage model.Stage, attemptID string) (StageState, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return StageState{}, fmt.Errorf("begin export: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	st, err := getState(ctx, tx, ref, stage)
	if err != nil {
		return StageState{}, err
	}
	now := l.now().UTC()
	st.ExportedAt = &now
	st.AttemptID = attemptID
	st.UpdatedAt = now
	if err := upsert(ctx, tx, st); err != nil {
		return StageState{}, err
	}
	if err := tx.Commit(); err != nil {
		return StageState{}, fmt.Errorf("commit export: %w", err)
	}
	return st, nil
}

// MarkStale flags the given stages stale where they are complete. It returns
// the stages it flagged.
func (l *Ledger) MarkStale(ctx context.Context, ref RunRef, stages []model.Stage) ([]model.Stage, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	var flagged []model.Stage
	for _, stage := range stages {
		res, err := l.db.ExecContext(ctx, `UPDATE stage_state SET stale = 1, updated_at = ?
			WHERE person_id = ? AND run_id = ? AND stage = ? AND status = ? AND stale = 0`,
			formatTime(l.now().UTC()), ref.PersonID, ref.RunID, string(stage), string(model.StatusComplete))
		if err != nil {
			return flagged, fmt.Errorf("mark %s stale: %w", stage, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			flagged = append(flagged, stage)
		}
	}
	return flagged, nil
}

// Processing lists every stage currently in processing, across all runs.
func (l *Ledger) Processing(ctx context.Context) ([]StageState, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT person_id, run_id, stage FROM stage_state
		WHERE status = ? ORDER BY person_id, run_id, stage`, string(model.StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("list processing stages: %w", err)
	}
	type key struct {
		ref   RunRef
		stage model.Stage
	}
	var keys []key
	for rows.Next() {
		var k key
		var stage string
		if err := rows.Scan(&k.ref.PersonID, &k.ref.RunID, &stage); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan stage state: %w", err)
		}
		k.stage = model.Stage(stage)
		keys = append(keys, k)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]StageState, 0, len(keys))
	for _, k := range keys {
		st, err := l.Get(ctx, k.ref, k.stage)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func upsert(ctx context.Context, tx *sql.Tx, st StageState) error {
	var exported any
	if st.ExportedAt != nil {
		exported = formatTime(*st.ExportedAt)
	}
	stale := 0
	if st.Stale {
		stale = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO stage_state
		(person_id, run_id, stage, status, error, attempt_id, exported_at, stale, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id, run_id, stage) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			attempt_id = excluded.attempt_id,
			exported_at = excluded.exported_at,
			stale = excluded.stale,
			updated_at = excluded.updated_at`,
		st.Ref.PersonID, st.Ref.RunID, string(st.Stage), string(st.Status), st.Error, st.AttemptID,
		exported, stale, formatTime(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write %s state: %w", st.Stage, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
