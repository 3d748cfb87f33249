package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"taskpulse/internal/domain"
)

var ErrNotFound = errors.New("not found")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  is_active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS workspaces (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS workspace_members (
  user_id TEXT NOT NULL,
  workspace_id TEXT NOT NULL,
  PRIMARY KEY (user_id, workspace_id),
  FOREIGN KEY(user_id) REFERENCES users(id),
  FOREIGN KEY(workspace_id) REFERENCES workspaces(id)
);
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  workspace_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  deadline DATETIME NOT NULL,
  priority TEXT NOT NULL CHECK(priority IN ('high','medium','low')) DEFAULT 'medium',
  status TEXT NOT NULL CHECK(status IN ('pending','doing','completed','Past due','trash')) DEFAULT 'pending',
  assigned_to TEXT,
  created_by TEXT NOT NULL,
  reminder_sent INTEGER NOT NULL DEFAULT 0,
  overdue_notified INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(workspace_id) REFERENCES workspaces(id),
  FOREIGN KEY(assigned_to) REFERENCES users(id),
  FOREIGN KEY(created_by) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_overdue ON tasks(status, overdue_notified, deadline);
CREATE INDEX IF NOT EXISTS idx_tasks_reminder ON tasks(status, reminder_sent, deadline);
CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON tasks(workspace_id, status);
`
	_, err := db.Exec(schema)
	return err
}

// Options controls which statuses the sweep queries consider. Zero value
// gets the defaults.
type Options struct {
	// OverdueExempt statuses are never selected by the overdue query.
	OverdueExempt []string
	// ReminderEligible statuses are the only ones the reminder query selects.
	ReminderEligible []string
}

func (o Options) withDefaults() Options {
	if len(o.OverdueExempt) == 0 {
		o.OverdueExempt = []string{domain.StatusCompleted, domain.StatusTrash, domain.StatusPastDue}
	}
	if len(o.ReminderEligible) == 0 {
		o.ReminderEligible = []string{domain.StatusPending, domain.StatusDoing}
	}
	return o
}

type Store interface {
	// Task CRUD
	CreateTask(ctx context.Context, t domain.Task) (string, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListWorkspaceTasks(ctx context.Context, workspaceID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) error
	SetTaskStatus(ctx context.Context, id, status string) error
	RestoreTask(ctx context.Context, id string) error
	StatusCounts(ctx context.Context, workspaceID string) (map[string]int, error)

	// Sweep queries and conditional flag updates
	FindOverdueCandidates(ctx context.Context, now time.Time) ([]domain.Task, error)
	FindUpcomingCandidates(ctx context.Context, now time.Time, window time.Duration) ([]domain.Task, error)
	MarkPastDue(ctx context.Context, id string) (bool, error)
	MarkReminderSent(ctx context.Context, id string) (bool, error)

	// Users and workspaces
	CreateUser(ctx context.Context, u domain.User) (string, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
	CreateWorkspace(ctx context.Context, w domain.Workspace) (string, error)
	GetWorkspace(ctx context.Context, id string) (domain.Workspace, error)
	AddMember(ctx context.Context, workspaceID, userID string) error
	GetWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.User, error)
}

type sqliteStore struct {
	db   *sql.DB
	opts Options
}

func NewSQLiteStore(db *sql.DB, opts Options) Store {
	return &sqliteStore{db: db, opts: opts.withDefaults()}
}

const taskCols = `id,workspace_id,title,description,deadline,priority,status,assigned_to,created_by,reminder_sent,overdue_notified,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var assigned sql.NullString
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Deadline, &t.Priority, &t.Status,
		&assigned, &t.CreatedBy, &t.ReminderSent, &t.OverdueNotified, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	if assigned.Valid {
		s := assigned.String
		t.AssignedTo = &s
	}
	return t, nil
}

func (s *sqliteStore) CreateTask(ctx context.Context, t domain.Task) (string, error) {
	id := t.ID
	if id == "" {
		id = "tsk_" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	var assigned any
	if t.AssignedTo != nil {
		assigned = *t.AssignedTo
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (id,workspace_id,title,description,deadline,priority,status,assigned_to,created_by,reminder_sent,overdue_notified,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,0,0,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, id, t.WorkspaceID, t.Title, t.Description, t.Deadline.UTC(), t.Priority, t.Status, assigned, t.CreatedBy)
	return id, err
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ListWorkspaceTasks(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+taskCols+` FROM tasks WHERE workspace_id=? ORDER BY deadline ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// UpdateTask rewrites the editable fields. Priority is recomputed by the
// caller before this is invoked; the dedup flags are never touched here.
func (s *sqliteStore) UpdateTask(ctx context.Context, t domain.Task) error {
	var assigned any
	if t.AssignedTo != nil {
		assigned = *t.AssignedTo
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET title=?,description=?,deadline=?,priority=?,status=?,assigned_to=?,updated_at=CURRENT_TIMESTAMP
WHERE id=?`, t.Title, t.Description, t.Deadline.UTC(), t.Priority, t.Status, assigned, t.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *sqliteStore) SetTaskStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// RestoreTask moves a trashed or past-due task back to pending and re-arms
// overdue detection by clearing the overdue flag. The sweep itself never
// clears flags; this is the one external operation that does.
func (s *sqliteStore) RestoreTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status=?, overdue_notified=0, updated_at=CURRENT_TIMESTAMP WHERE id=?`, domain.StatusPending, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *sqliteStore) StatusCounts(ctx context.Context, workspaceID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT status, COUNT(*) FROM tasks WHERE workspace_id=? GROUP BY status`, workspaceID)
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

func (s *sqliteStore) FindOverdueCandidates(ctx context.Context, now time.Time) ([]domain.Task, error) {
	q := `
SELECT ` + taskCols + ` FROM tasks
WHERE deadline < ? AND status NOT IN (` + placeholders(len(s.opts.OverdueExempt)) + `) AND overdue_notified=0
ORDER BY deadline ASC`
	args := append([]any{now.UTC()}, toAny(s.opts.OverdueExempt)...)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *sqliteStore) FindUpcomingCandidates(ctx context.Context, now time.Time, window time.Duration) ([]domain.Task, error) {
	q := `
SELECT ` + taskCols + ` FROM tasks
WHERE deadline > ? AND deadline <= ? AND status IN (` + placeholders(len(s.opts.ReminderEligible)) + `) AND reminder_sent=0
ORDER BY deadline ASC`
	args := append([]any{now.UTC(), now.UTC().Add(window)}, toAny(s.opts.ReminderEligible)...)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// MarkPastDue flips the task to "Past due" and sets the overdue flag in one
// conditional update. Returns false when another sweep already won the race.
func (s *sqliteStore) MarkPastDue(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status=?, overdue_notified=1, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND overdue_notified=0`, domain.StatusPastDue, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkReminderSent sets the reminder flag iff still unset. Status untouched.
func (s *sqliteStore) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET reminder_sent=1, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND reminder_sent=0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *sqliteStore) CreateUser(ctx context.Context, u domain.User) (string, error) {
	id := u.ID
	if id == "" {
		id = "usr_" + uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id,username,email,is_active) VALUES (?,?,?,?)`, id, u.Username, u.Email, u.IsActive)
	return id, err
}

func (s *sqliteStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,username,email,is_active FROM users WHERE id=?`, id)
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.IsActive)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

func (s *sqliteStore) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active=? WHERE id=?`, active, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *sqliteStore) CreateWorkspace(ctx context.Context, w domain.Workspace) (string, error) {
	id := w.ID
	if id == "" {
		id = "wsp_" + uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO workspaces (id,name,created_at) VALUES (?,?,CURRENT_TIMESTAMP)`, id, w.Name)
	return id, err
}

func (s *sqliteStore) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,created_at FROM workspaces WHERE id=?`, id)
	var w domain.Workspace
	err := row.Scan(&w.ID, &w.Name, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Workspace{}, ErrNotFound
	}
	return w, err
}

func (s *sqliteStore) AddMember(ctx context.Context, workspaceID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO workspace_members (user_id, workspace_id) VALUES (?,?)`, userID, workspaceID)
	return err
}

func (s *sqliteStore) GetWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT u.id,u.username,u.email,u.is_active
FROM users u JOIN workspace_members m ON m.user_id = u.id
WHERE m.workspace_id=? ORDER BY u.username`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsActive); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
