package client

import (
	"context"
	"sync"

	"github.com/andriy-shtumpf/todo-test/internal/domain/models"
)

// TaskStore caches the task collection for the views. Mutations apply
// the server's response, never the local input, so computed fields
// (timestamps, defaults) cannot drift from the backend. Overlapping
// calls are not serialized; the last response to land wins.
type TaskStore struct {
	api *Client

	mu      sync.Mutex
	tasks   []models.Task
	loading bool
	err     error
}

func NewTaskStore(api *Client) *TaskStore {
	return &TaskStore{api: api}
}

// Refresh replaces the cached collection with the server's.
func (s *TaskStore) Refresh(ctx context.Context) error {
	s.begin()
	tasks, err := s.api.Tasks(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = tasks
	s.loading = false
	return nil
}

// RefreshUser replaces the cached collection with one owner's tasks.
func (s *TaskStore) RefreshUser(ctx context.Context, userID string) error {
	s.begin()
	tasks, err := s.api.UserTasks(ctx, userID)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = tasks
	s.loading = false
	return nil
}

func (s *TaskStore) Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	s.begin()
	task, err := s.api.CreateTask(ctx, req)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, *task)
	s.loading = false
	return task, nil
}

func (s *TaskStore) Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	s.begin()
	task, err := s.api.UpdateTask(ctx, id, patch)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i] = *task
			break
		}
	}
	s.loading = false
	return task, nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	s.begin()
	if err := s.api.DeleteTask(ctx, id); err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tasks[:0]
	for _, task := range s.tasks {
		if task.ID != id {
			kept = append(kept, task)
		}
	}
	s.tasks = kept
	s.loading = false
	return nil
}

// Tasks returns a copy of the cached collection.
func (s *TaskStore) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]models.Task, len(s.tasks))
	copy(tasks, s.tasks)
	return tasks
}

func (s *TaskStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *TaskStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *TaskStore) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.err = nil
}

func (s *TaskStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
}
