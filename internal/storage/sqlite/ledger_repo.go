package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cfbotcore/pipeline/internal/ledger"
)

// LedgerRepo implements ledger.Store against the tasks/commands/artifacts/
// branch_history tables.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo constructs a LedgerRepo.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db.conn}
}

var _ ledger.Store = (*LedgerRepo)(nil)

func marshalPayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

func unmarshalPayload(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var p map[string]any
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

func (r *LedgerRepo) CreateTask(ctx context.Context, t *ledger.Task) error {
	payload, err := marshalPayload(t.Payload)
	if err != nil {
		return err
	}
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	if t.Created.IsZero() {
		t.Created = time.Now().UTC()
	}
	t.Modified = t.Created

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, branch_id, name, position, status, payload, created, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.BranchID, t.TaskName, t.Position, string(t.Status), payload, t.Created, t.Modified,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: task last insert id: %w", err)
	}
	t.ID = id
	return nil
}

func (r *LedgerRepo) UpdateTask(ctx context.Context, t *ledger.Task) error {
	payload, err := marshalPayload(t.Payload)
	if err != nil {
		return err
	}
	t.Modified = time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, payload = ?, modified = ? WHERE id = ?`,
		string(t.Status), payload, t.Modified, t.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update task: %w", err)
	}
	return nil
}

func scanTask(scanner interface{ Scan(...any) error }) (*ledger.Task, error) {
	var t ledger.Task
	var status, payload string
	if err := scanner.Scan(&t.ID, &t.TaskID, &t.BranchID, &t.TaskName, &t.Position, &status, &payload, &t.Created, &t.Modified); err != nil {
		return nil, err
	}
	t.Status = ledger.TaskStatus(status)
	p, err := unmarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	t.Payload = p
	return &t, nil
}

const taskColumns = `id, task_id, branch_id, name, position, status, payload, created, modified`

func (r *LedgerRepo) TasksForBranch(ctx context.Context, branchID string) ([]*ledger.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE branch_id = ? ORDER BY position, id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query tasks for branch: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *LedgerRepo) FirstTaskByName(ctx context.Context, branchID, taskName string) (*ledger.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE branch_id = ? AND name = ? ORDER BY id LIMIT 1`, branchID, taskName)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: first task by name: %w", err)
	}
	return t, nil
}

func (r *LedgerRepo) ClearTasksForBranch(ctx context.Context, branchID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE branch_id = ?`, branchID); err != nil {
		return fmt.Errorf("sqlite: clear tasks for branch: %w", err)
	}
	return nil
}

func (r *LedgerRepo) CreateCommand(ctx context.Context, c *ledger.Command) error {
	payload, err := marshalPayload(c.Payload)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO commands (task_id, name, kind, status, duration_ms, payload, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.TaskID, c.Name, c.Type, string(c.Status), c.Duration.Milliseconds(), payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: command last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *LedgerRepo) UpdateCommand(ctx context.Context, c *ledger.Command) error {
	payload, err := marshalPayload(c.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE commands SET status = ?, duration_ms = ?, payload = ? WHERE id = ?`,
		string(c.Status), c.Duration.Milliseconds(), payload, c.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update command: %w", err)
	}
	return nil
}

func (r *LedgerRepo) CommandsForTask(ctx context.Context, taskID int64, commandType string) ([]*ledger.Command, error) {
	query := `SELECT id, task_id, name, kind, status, duration_ms, payload FROM commands WHERE task_id = ?`
	args := []any{taskID}
	if commandType != "" {
		query += ` AND kind = ?`
		args = append(args, commandType)
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query commands for task: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Command
	for rows.Next() {
		var c ledger.Command
		var status, payload string
		var durationMS int64
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Name, &c.Type, &status, &durationMS, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan command: %w", err)
		}
		c.Status = ledger.TaskStatus(status)
		c.Duration = time.Duration(durationMS) * time.Millisecond
		p, err := unmarshalPayload(payload)
		if err != nil {
			return nil, err
		}
		c.Payload = p
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *LedgerRepo) CreateArtifact(ctx context.Context, a *ledger.Artifact) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (task_id, name, path, size, body, created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.TaskID, a.Name, a.Path, a.Size, a.Body, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert artifact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: artifact last insert id: %w", err)
	}
	a.ID = id
	return nil
}

func (r *LedgerRepo) AppendHistory(ctx context.Context, h *ledger.BranchHistory) error {
	tasksJSON, err := json.Marshal(h.Tasks)
	if err != nil {
		return fmt.Errorf("sqlite: marshal history tasks: %w", err)
	}
	if h.Modified.IsZero() {
		h.Modified = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO branch_history (branch_id, patch_id, status, tasks_json, modified)
		VALUES (?, ?, ?, ?, ?)`,
		h.BranchID, h.PatchID, h.Status, string(tasksJSON), h.Modified,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert branch history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: history last insert id: %w", err)
	}
	h.ID = id
	h.TaskCount = len(h.Tasks)
	return nil
}

func (r *LedgerRepo) HistoryForBranch(ctx context.Context, branchID string) ([]*ledger.BranchHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, branch_id, patch_id, status, tasks_json, modified
		FROM branch_history WHERE branch_id = ? ORDER BY id DESC`, branchID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query branch history: %w", err)
	}
	defer rows.Close()

	var out []*ledger.BranchHistory
	for rows.Next() {
		var h ledger.BranchHistory
		var tasksJSON string
		if err := rows.Scan(&h.ID, &h.BranchID, &h.PatchID, &h.Status, &tasksJSON, &h.Modified); err != nil {
			return nil, fmt.Errorf("sqlite: scan branch history: %w", err)
		}
		if err := json.Unmarshal([]byte(tasksJSON), &h.Tasks); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal history tasks: %w", err)
		}
		h.TaskCount = len(h.Tasks)
		out = append(out, &h)
	}
	return out, rows.Err()
}
