package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	domain "github.com/andriy-shtumpf/todo-test/internal/domain/errors"
	"github.com/andriy-shtumpf/todo-test/internal/domain/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 15 * time.Second

const taskColumns = "id, title, description, status, user_id, address, due_date, created_at, updated_at"

// Storage executes parameterized statements against Postgres through a
// connection pool shared across concurrent requests.
type Storage struct {
	pool           *pgxpool.Pool
	sqlListAll     string
	sqlListByOwner string
	sqlGetTask     string
	sqlInsertTask  string
	sqlDeleteTask  string
	sqlUpsertUser  string
}

func NewStorage(connStr string) (*Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Println("[ERROR] Failed to create database pool:", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		log.Println("[ERROR] Failed to connect to database:", err)
		pool.Close()
		return nil, err
	}

	s := &Storage{
		pool:           pool,
		sqlListAll:     `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC`,
		sqlListByOwner: `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY created_at DESC`,
		sqlGetTask:     `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`,
		sqlInsertTask:  `INSERT INTO tasks (title, description, status, user_id, address, due_date) VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + taskColumns,
		sqlDeleteTask:  `DELETE FROM tasks WHERE id = $1`,
		sqlUpsertUser:  `INSERT INTO users (id, email) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
	}
	log.Println("[SUCCESS] Database connection established")
	return s, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Storage) ListAll(ctx context.Context) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, s.sqlListAll)
	if err != nil {
		log.Println("[ERROR] Failed to fetch tasks:", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (s *Storage) ListByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, s.sqlListByOwner, ownerID)
	if err != nil {
		log.Println("[ERROR] Failed to fetch tasks for owner:", ownerID, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (s *Storage) GetByID(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task, err := scanTask(s.pool.QueryRow(ctx, s.sqlGetTask, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		log.Println("[ERROR] Failed to fetch task:", id, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return task, nil
}

// Create validates the request, upserts the owner's user row and
// inserts the task. Both statements run in one transaction so a crash
// between them cannot leave a half-applied create.
func (s *Storage) Create(ctx context.Context, owner models.User, req models.CreateTaskRequest) (*models.Task, error) {
	if strings.TrimSpace(req.Title) == "" || owner.ID == "" {
		return nil, domain.ErrTitleRequired
	}
	status := req.Status
	if status == "" {
		status = models.StatusCreated
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		log.Println("[ERROR] Failed to begin transaction:", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.ensureUserTx(ctx, tx, owner); err != nil {
		return nil, err
	}

	task, err := scanTask(tx.QueryRow(ctx, s.sqlInsertTask,
		req.Title,
		emptyToNull(req.Description),
		status,
		owner.ID,
		emptyToNull(req.Address),
		models.ParseDueDate(req.DueDate),
	))
	if err != nil {
		log.Println("[ERROR] Failed to create task:", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		log.Println("[ERROR] Failed to commit task creation:", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	log.Println("[SUCCESS] Task created:", task.ID)
	return task, nil
}

// EnsureUser inserts the user row if it does not exist yet; existing
// rows are left untouched.
func (s *Storage) EnsureUser(ctx context.Context, user models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, s.sqlUpsertUser, user.ID, user.Email); err != nil {
		log.Println("[ERROR] Failed to upsert user:", user.ID, err)
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Storage) ensureUserTx(ctx context.Context, tx pgx.Tx, user models.User) error {
	if _, err := tx.Exec(ctx, s.sqlUpsertUser, user.ID, user.Email); err != nil {
		log.Println("[ERROR] Failed to upsert user:", user.ID, err)
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Storage) Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	query, args, err := buildTaskUpdate(id, patch)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Println("[ERROR] Task to update not found:", id)
			return nil, domain.ErrTaskNotFound
		}
		log.Println("[ERROR] Failed to update task:", id, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	log.Println("[SUCCESS] Task updated:", id)
	return task, nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, s.sqlDeleteTask, id)
	if err != nil {
		log.Println("[ERROR] Failed to delete task:", id, err)
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if ct.RowsAffected() == 0 {
		log.Println("[ERROR] Task to delete not found:", id)
		return domain.ErrTaskNotFound
	}

	log.Println("[SUCCESS] Task deleted:", id)
	return nil
}

// buildTaskUpdate assembles an UPDATE statement from the fields present
// in the patch. Absent fields never enter the SET list, so they cannot
// be overwritten with nulls; updated_at is always refreshed.
func buildTaskUpdate(id string, patch models.TaskPatch) (string, []any, error) {
	var assignments []string
	var args []any

	add := func(wire string, value any) {
		column, ok := models.ColumnFor(wire)
		if !ok {
			return
		}
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title.Set {
		add("title", patch.Title.Value)
	}
	if patch.Description.Set {
		add("description", nullIfEmpty(patch.Description.Value))
	}
	if patch.Status.Set {
		add("status", patch.Status.Value)
	}
	if patch.Address.Set {
		add("address", nullIfEmpty(patch.Address.Value))
	}
	if patch.DueDate.Set {
		// invalid dates are stored as absent, not rejected
		var due *time.Time
		if patch.DueDate.Value != nil {
			due = models.ParseDueDate(*patch.DueDate.Value)
		}
		add("dueDate", due)
	}

	if len(assignments) == 0 {
		return "", nil, domain.ErrNoFieldsToUpdate
	}

	assignments = append(assignments, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d RETURNING %s",
		strings.Join(assignments, ", "), len(args), taskColumns)
	return query, args, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.UserID,
		&task.Address,
		&task.DueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func collectTasks(rows pgx.Rows) ([]models.Task, error) {
	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Println("[ERROR] Failed to scan task row:", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return tasks, nil
}

func emptyToNull(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
