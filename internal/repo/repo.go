package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"swarmline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// EnsureContext inserts the context row if it does not exist and bumps its
// updated_at either way.
func (r Repo) EnsureContext(ctx context.Context, tx *sql.Tx, contextID, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contexts(context_id,status,created_at,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(context_id) DO UPDATE SET updated_at=excluded.updated_at`,
		contextID, "active", now, now)
	return err
}

func (r Repo) GetContext(ctx context.Context, contextID string) (domain.Context, error) {
	var c domain.Context
	err := r.DB.QueryRowContext(ctx, `SELECT context_id,status,created_at,updated_at FROM contexts WHERE context_id=?`, contextID).
		Scan(&c.ID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// AppendExchange stores one request/response round trip under a context.
func (r Repo) AppendExchange(ctx context.Context, tx *sql.Tx, contextID, request string, result domain.AggregatedResult, now string) (domain.Exchange, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return domain.Exchange{}, err
	}
	e := domain.Exchange{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Request:   request,
		Success:   result.Success,
		Result:    string(data),
		CreatedAt: now,
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO exchanges(id,context_id,request,success,result_json,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.ContextID, e.Request, boolToInt(e.Success), e.Result, e.CreatedAt)
	return e, err
}

func (r Repo) ListExchanges(ctx context.Context, contextID string) ([]domain.Exchange, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,context_id,request,success,result_json,created_at FROM exchanges WHERE context_id=? ORDER BY created_at, rowid`, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Exchange
	for rows.Next() {
		var e domain.Exchange
		var success int
		if err := rows.Scan(&e.ID, &e.ContextID, &e.Request, &success, &e.Result, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Success = success != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// ArchiveTask persists a terminal task record evicted from the registry.
func (r Repo) ArchiveTask(ctx context.Context, t domain.Task, archivedAt string) error {
	var outputJSON any
	if t.Output != nil {
		data, err := json.Marshal(t.Output)
		if err != nil {
			return err
		}
		outputJSON = string(data)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_archive(task_id,capability,context_id,status,output_json,error,created_at,updated_at,archived_at)
		VALUES (?,?,?,?,?,?,?,?,?) ON CONFLICT(task_id) DO NOTHING`,
		t.ID, string(t.Capability), nullable(t.ContextID), string(t.Status), outputJSON, nullable(t.Error), t.CreatedAt, t.UpdatedAt, archivedAt)
	return err
}

func (r Repo) GetArchivedTask(ctx context.Context, taskID string) (domain.Task, error) {
	var t domain.Task
	var outputJSON, contextID, errMsg sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT task_id,capability,context_id,status,output_json,error,created_at,updated_at FROM task_archive WHERE task_id=?`, taskID).
		Scan(&t.ID, &t.Capability, &contextID, &t.Status, &outputJSON, &errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ContextID = contextID.String
	t.Error = errMsg.String
	if outputJSON.Valid {
		if err := json.Unmarshal([]byte(outputJSON.String), &t.Output); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (r Repo) ListArchivedTasks(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id,capability,context_id,status,output_json,error,created_at,updated_at FROM task_archive ORDER BY archived_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		var t domain.Task
		var outputJSON, contextID, errMsg sql.NullString
		if err := rows.Scan(&t.ID, &t.Capability, &contextID, &t.Status, &outputJSON, &errMsg, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.ContextID = contextID.String
		t.Error = errMsg.String
		if outputJSON.Valid {
			if err := json.Unmarshal([]byte(outputJSON.String), &t.Output); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r Repo) CountArchivedByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM task_archive GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r Repo) ListEvents(ctx context.Context, contextID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(context_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE (?='' OR context_id=?) ORDER BY id DESC LIMIT ?`,
		contextID, contextID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ContextID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Now formats a repo timestamp.
func Now(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
