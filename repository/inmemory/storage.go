package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/andriy-shtumpf/todo-test/internal/domain/errors"
	"github.com/andriy-shtumpf/todo-test/internal/domain/models"
	"github.com/google/uuid"
)

// Storage is a map-backed task repository with the same contract as the
// Postgres one. It backs the service when no database is reachable and
// the repository-level tests.
type Storage struct {
	mu    sync.RWMutex
	users map[string]models.User
	tasks map[string]models.Task
}

func NewStorage() *Storage {
	return &Storage{
		users: make(map[string]models.User),
		tasks: make(map[string]models.Task),
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) ListAll(ctx context.Context) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]models.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	sortByCreatedDesc(tasks)
	return tasks, nil
}

func (s *Storage) ListByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := []models.Task{}
	for _, task := range s.tasks {
		if task.UserID == ownerID {
			tasks = append(tasks, task)
		}
	}
	sortByCreatedDesc(tasks)
	return tasks, nil
}

func (s *Storage) GetByID(ctx context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, domain.ErrTaskNotFound
	}
	return &task, nil
}

func (s *Storage) EnsureUser(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureUserLocked(user)
	return nil
}

func (s *Storage) ensureUserLocked(user models.User) {
	if _, exists := s.users[user.ID]; !exists {
		s.users[user.ID] = user
	}
}

func (s *Storage) Create(ctx context.Context, owner models.User, req models.CreateTaskRequest) (*models.Task, error) {
	if strings.TrimSpace(req.Title) == "" || owner.ID == "" {
		return nil, domain.ErrTitleRequired
	}
	status := req.Status
	if status == "" {
		status = models.StatusCreated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureUserLocked(owner)

	now := time.Now().UTC()
	task := models.Task{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: emptyToNull(req.Description),
		Status:      status,
		UserID:      owner.ID,
		Address:     emptyToNull(req.Address),
		DueDate:     models.ParseDueDate(req.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[task.ID] = task
	return &task, nil
}

func (s *Storage) Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if patch.Empty() {
		return nil, domain.ErrNoFieldsToUpdate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, domain.ErrTaskNotFound
	}

	if patch.Title.Set && patch.Title.Value != nil {
		task.Title = *patch.Title.Value
	}
	if patch.Description.Set {
		task.Description = nullIfEmpty(patch.Description.Value)
	}
	if patch.Status.Set && patch.Status.Value != nil {
		task.Status = *patch.Status.Value
	}
	if patch.Address.Set {
		task.Address = nullIfEmpty(patch.Address.Value)
	}
	if patch.DueDate.Set {
		task.DueDate = nil
		if patch.DueDate.Value != nil {
			task.DueDate = models.ParseDueDate(*patch.DueDate.Value)
		}
	}
	task.UpdatedAt = time.Now().UTC()

	s.tasks[id] = task
	return &task, nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// UserExists reports whether the owner row has been upserted; used by
// tests to assert the create side effect.
func (s *Storage) UserExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.users[id]
	return exists
}

func sortByCreatedDesc(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
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
