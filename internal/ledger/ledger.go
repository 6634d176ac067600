// Package ledger records every dispatched submission in SQLite so runs can be
// listed, inspected and watched after the CLI exits.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxOutputBytes = 64 * 1024

const defaultListLimit = 50

// Fixed-width so created_at orders lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `
  id, kind, plugin, config, machine, backend, label, script, program, wall_time, memory,
  cores, array_size, arguments, workspace_id, script_path, scan_parameter, scan_value,
  status, backend_job_id, created_at, submitted_at, completed_at, last_error, output`

type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Record inserts a queued submission and returns its id.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (string, error) {
	if req.Plugin == "" {
		return "", fmt.Errorf("plugin is empty")
	}
	if req.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	if req.Script == "" {
		return "", fmt.Errorf("script is empty")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	cores := req.Cores
	if cores <= 0 {
		cores = 1
	}
	now := l.stamp()

	_, err := l.db.ExecContext(ctx, `
INSERT INTO submissions(
  id, kind, plugin, config, machine, backend, label, script, program, wall_time, memory,
  cores, array_size, arguments, workspace_id, script_path, scan_parameter, scan_value,
  status, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, req.Kind, req.Plugin, req.Config, req.Machine, req.Backend, req.Label, req.Script,
		nullable(req.Program), nullable(req.WallTime), nullable(req.Memory),
		cores, req.ArraySize, req.Arguments, nullable(req.WorkspaceID), nullable(req.ScriptPath),
		req.ScanParameter, req.ScanValue, StatusQueued, now)
	if err != nil {
		return "", fmt.Errorf("record submission: %w", err)
	}
	return id, nil
}

// MarkSubmitted records that the backend accepted the submission.
func (l *Ledger) MarkSubmitted(ctx context.Context, id, backendJobID string) error {
	if id == "" {
		return fmt.Errorf("id is empty")
	}
	res, err := l.db.ExecContext(ctx, `
UPDATE submissions
SET status = ?, submitted_at = ?, backend_job_id = ?
WHERE id = ?;
`, StatusSubmitted, l.stamp(), nullable(backendJobID), id)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	return expectOneRow(res, id)
}

// Complete marks a submission terminal. Output is truncated to 64KB.
func (l *Ledger) Complete(ctx context.Context, id string, status Status, lastError, output *string) error {
	if id == "" {
		return fmt.Errorf("id is empty")
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	var outputVal any
	if output != nil {
		s := *output
		if len(s) > maxOutputBytes {
			s = s[:maxOutputBytes]
		}
		outputVal = s
	}

	now := l.stamp()
	res, err := l.db.ExecContext(ctx, `
UPDATE submissions
SET status = ?, completed_at = ?, last_error = ?, output = ?,
    submitted_at = COALESCE(submitted_at, ?)
WHERE id = ?;
`, status, now, lastError, outputVal, now, id)
	if err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	return expectOneRow(res, id)
}

// Get loads a submission by id or by a unique id prefix.
func (l *Ledger) Get(ctx context.Context, id string) (*Submission, error) {
	if id == "" {
		return nil, fmt.Errorf("id is empty")
	}

	s, err := scanSubmission(l.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM submissions WHERE id = ?;`, id))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get submission: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT`+selectColumns+` FROM submissions WHERE id LIKE ? ESCAPE '\' LIMIT 2;`, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get submission by prefix: %w", err)
	}
	defer rows.Close()

	var matches []*Submission
	for rows.Next() {
		m, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// List returns submissions newest first.
func (l *Ledger) List(ctx context.Context, f ListFilter) ([]Submission, error) {
	var (
		where []string
		args  []any
	)
	if f.Plugin != "" {
		where = append(where, "plugin = ?")
		args = append(args, f.Plugin)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := `SELECT` + selectColumns + ` FROM submissions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

// Counts returns the number of submissions per status.
func (l *Ledger) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	defer rows.Close()

	out := map[Status]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

func (l *Ledger) stamp() string {
	return l.now().UTC().Format(timeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var (
		s             Submission
		program       sql.NullString
		wallTime      sql.NullString
		memory        sql.NullString
		workspaceID   sql.NullString
		scriptPath    sql.NullString
		scanParameter sql.NullString
		scanValue     sql.NullString
		statusS       string
		backendJobID  sql.NullString
		createdAtS    string
		submittedAtS  sql.NullString
		completedAtS  sql.NullString
		lastError     sql.NullString
		output        sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.Kind, &s.Plugin, &s.Config, &s.Machine, &s.Backend, &s.Label, &s.Script, &program, &wallTime, &memory,
		&s.Cores, &s.ArraySize, &s.Arguments, &workspaceID, &scriptPath, &scanParameter, &scanValue,
		&statusS, &backendJobID, &createdAtS, &submittedAtS, &completedAtS, &lastError, &output,
	)
	if err != nil {
		return nil, err
	}

	s.Status = Status(statusS)
	s.Program = program.String
	s.WallTime = wallTime.String
	s.Memory = memory.String
	s.WorkspaceID = workspaceID.String
	s.ScriptPath = scriptPath.String
	s.ScanParameter = optString(scanParameter)
	s.ScanValue = optString(scanValue)
	s.BackendJobID = optString(backendJobID)
	s.LastError = optString(lastError)
	s.Output = optString(output)
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		s.CreatedAt = t
	}
	s.SubmittedAt = optTime(submittedAtS)
	s.CompletedAt = optTime(completedAtS)
	return &s, nil
}

func optString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func optTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	return nil
}
