package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andriy-shtumpf/todo-test/internal/auth"
	domain "github.com/andriy-shtumpf/todo-test/internal/domain/errors"
	"github.com/andriy-shtumpf/todo-test/internal/domain/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) ListAll(ctx context.Context) ([]models.Task, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *MockTaskRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) Create(ctx context.Context, owner models.User, req models.CreateTaskRequest) (*models.Task, error) {
	args := m.Called(ctx, owner, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

const testTaskID = "6f1c1fce-5b2b-4f6a-9a58-2d2a0e6c9b01"

func newTestAPI(t *testing.T, repo TaskRepository) *TaskAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := &stubVerifier{identity: &auth.Identity{SubjectID: "u1", Email: "u1@example.com"}}
	api := NewTaskAPI(repo, verifier, nil)
	require.NotNil(t, api)
	return api
}

func doRequest(api *TaskAPI, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	rec := httptest.NewRecorder()
	api.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func sampleTask() *models.Task {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	return &models.Task{
		ID:        testTaskID,
		Title:     "Buy milk",
		Status:    models.StatusCreated,
		UserID:    "u1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewTaskAPIRequiresCollaborators(t *testing.T) {
	assert.Nil(t, NewTaskAPI(nil, &stubVerifier{}, nil))
	assert.Nil(t, NewTaskAPI(&MockTaskRepository{}, nil, nil))
}

func TestCreateTask(t *testing.T) {
	tests := []struct {
		name      string
		body      any
		mockSetup func(*MockTaskRepository)
		want      struct {
			statusCode int
			errorBody  string
		}
	}{
		{
			name: "created with defaults",
			body: gin.H{"title": "Buy milk"},
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Create", mock.Anything, models.User{ID: "u1", Email: "u1@example.com"},
					models.CreateTaskRequest{Title: "Buy milk"}).Return(sampleTask(), nil)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusCreated},
		},
		{
			name:      "missing title never reaches the repository",
			body:      gin.H{"description": "two liters"},
			mockSetup: func(repo *MockTaskRepository) {},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusBadRequest, errorBody: `{"error":"Title is required"}`},
		},
		{
			name:      "invalid status value",
			body:      gin.H{"title": "Buy milk", "status": "done"},
			mockSetup: func(repo *MockTaskRepository) {},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusBadRequest, errorBody: `{"error":"Invalid status value"}`},
		},
		{
			name:      "malformed body",
			body:      nil,
			mockSetup: func(repo *MockTaskRepository) {},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusBadRequest, errorBody: `{"error":"Invalid request body"}`},
		},
		{
			name: "storage failure",
			body: gin.H{"title": "Buy milk"},
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrStorage)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusInternalServerError, errorBody: `{"error":"Failed to create task"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTaskRepository{}
			tt.mockSetup(repo)
			api := newTestAPI(t, repo)

			rec := doRequest(api, http.MethodPost, "/api/tasks", tt.body, true)

			assert.Equal(t, tt.want.statusCode, rec.Code)
			if tt.want.errorBody != "" {
				assert.JSONEq(t, tt.want.errorBody, rec.Body.String())
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestCreateTaskOwnerComesFromToken(t *testing.T) {
	repo := &MockTaskRepository{}
	repo.On("Create", mock.Anything, models.User{ID: "u1", Email: "u1@example.com"}, mock.Anything).
		Return(sampleTask(), nil)
	api := newTestAPI(t, repo)

	// a userId in the body must be ignored in favor of the verified subject
	rec := doRequest(api, http.MethodPost, "/api/tasks", gin.H{"title": "Buy milk", "userId": "intruder"}, true)

	assert.Equal(t, http.StatusCreated, rec.Code)
	repo.AssertExpectations(t)
}

func TestCreateTaskResponseShape(t *testing.T) {
	repo := &MockTaskRepository{}
	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(sampleTask(), nil)
	api := newTestAPI(t, repo)

	rec := doRequest(api, http.MethodPost, "/api/tasks", gin.H{"title": "Buy milk"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	var task map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Contains(t, task, "userId")
	assert.Contains(t, task, "createdAt")
	assert.Equal(t, `"created"`, string(task["status"]))
	assert.Equal(t, `null`, string(task["description"]))
}

func TestGetTasks(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(*MockTaskRepository)
		want      struct {
			statusCode int
			length     int
		}
	}{
		{
			name: "empty list stays an array",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("ListAll", mock.Anything).Return([]models.Task{}, nil)
			},
			want: struct {
				statusCode int
				length     int
			}{statusCode: http.StatusOK, length: 0},
		},
		{
			name: "tasks returned",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("ListAll", mock.Anything).Return([]models.Task{*sampleTask()}, nil)
			},
			want: struct {
				statusCode int
				length     int
			}{statusCode: http.StatusOK, length: 1},
		},
		{
			name: "storage failure",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("ListAll", mock.Anything).Return(nil, domain.ErrStorage)
			},
			want: struct {
				statusCode int
				length     int
			}{statusCode: http.StatusInternalServerError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTaskRepository{}
			tt.mockSetup(repo)
			api := newTestAPI(t, repo)

			rec := doRequest(api, http.MethodGet, "/api/tasks", nil, true)

			assert.Equal(t, tt.want.statusCode, rec.Code)
			if tt.want.statusCode == http.StatusOK {
				var tasks []models.Task
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
				assert.Len(t, tasks, tt.want.length)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestGetUserTasks(t *testing.T) {
	repo := &MockTaskRepository{}
	repo.On("ListByOwner", mock.Anything, "u2").Return([]models.Task{}, nil)
	api := newTestAPI(t, repo)

	rec := doRequest(api, http.MethodGet, "/api/tasks/user/u2", nil, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestGetTaskByID(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(*MockTaskRepository)
		want      struct {
			statusCode int
			errorBody  string
		}
	}{
		{
			name: "found",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("GetByID", mock.Anything, testTaskID).Return(sampleTask(), nil)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusOK},
		},
		{
			name: "unknown id",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("GetByID", mock.Anything, testTaskID).Return(nil, domain.ErrTaskNotFound)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusNotFound, errorBody: `{"error":"Task not found"}`},
		},
		{
			name: "storage failure",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("GetByID", mock.Anything, testTaskID).Return(nil, domain.ErrStorage)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusInternalServerError, errorBody: `{"error":"Failed to fetch task"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTaskRepository{}
			tt.mockSetup(repo)
			api := newTestAPI(t, repo)

			rec := doRequest(api, http.MethodGet, "/api/tasks/"+testTaskID, nil, true)

			assert.Equal(t, tt.want.statusCode, rec.Code)
			if tt.want.errorBody != "" {
				assert.JSONEq(t, tt.want.errorBody, rec.Body.String())
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestUpdateTask(t *testing.T) {
	completed := func() *models.Task {
		task := sampleTask()
		task.Status = models.StatusCompleted
		return task
	}

	tests := []struct {
		name      string
		body      any
		mockSetup func(*MockTaskRepository)
		want      struct {
			statusCode int
			errorBody  string
		}
	}{
		{
			name: "partial status update",
			body: gin.H{"status": "completed"},
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Update", mock.Anything, testTaskID,
					models.TaskPatch{Status: models.PatchString(models.StatusCompleted)}).
					Return(completed(), nil)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusOK},
		},
		{
			name: "empty update set",
			body: gin.H{},
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Update", mock.Anything, testTaskID, models.TaskPatch{}).
					Return(nil, domain.ErrNoFieldsToUpdate)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusBadRequest, errorBody: `{"error":"No fields to update"}`},
		},
		{
			name:      "invalid status is rejected before the repository",
			body:      gin.H{"status": "archived"},
			mockSetup: func(repo *MockTaskRepository) {},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusBadRequest, errorBody: `{"error":"Invalid status value"}`},
		},
		{
			name: "unknown id",
			body: gin.H{"title": "x"},
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Update", mock.Anything, testTaskID, mock.Anything).
					Return(nil, domain.ErrTaskNotFound)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusNotFound, errorBody: `{"error":"Task not found"}`},
		},
		{
			name: "storage failure",
			body: gin.H{"title": "x"},
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Update", mock.Anything, testTaskID, mock.Anything).
					Return(nil, domain.ErrStorage)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusInternalServerError, errorBody: `{"error":"Failed to update task"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTaskRepository{}
			tt.mockSetup(repo)
			api := newTestAPI(t, repo)

			rec := doRequest(api, http.MethodPut, "/api/tasks/"+testTaskID, tt.body, true)

			assert.Equal(t, tt.want.statusCode, rec.Code)
			if tt.want.errorBody != "" {
				assert.JSONEq(t, tt.want.errorBody, rec.Body.String())
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestDeleteTask(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(*MockTaskRepository)
		want      struct {
			statusCode int
			errorBody  string
		}
	}{
		{
			name: "deleted",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Delete", mock.Anything, testTaskID).Return(nil)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusNoContent},
		},
		{
			name: "unknown id",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Delete", mock.Anything, testTaskID).Return(domain.ErrTaskNotFound)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusNotFound, errorBody: `{"error":"Task not found"}`},
		},
		{
			name: "storage failure",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Delete", mock.Anything, testTaskID).Return(domain.ErrStorage)
			},
			want: struct {
				statusCode int
				errorBody  string
			}{statusCode: http.StatusInternalServerError, errorBody: `{"error":"Failed to delete task"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTaskRepository{}
			tt.mockSetup(repo)
			api := newTestAPI(t, repo)

			rec := doRequest(api, http.MethodDelete, "/api/tasks/"+testTaskID, nil, true)

			assert.Equal(t, tt.want.statusCode, rec.Code)
			if tt.want.statusCode == http.StatusNoContent {
				assert.Empty(t, rec.Body.String())
			}
			if tt.want.errorBody != "" {
				assert.JSONEq(t, tt.want.errorBody, rec.Body.String())
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestTasksRequireAuthentication(t *testing.T) {
	repo := &MockTaskRepository{}
	api := newTestAPI(t, repo)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/tasks"},
		{http.MethodGet, "/api/tasks/user/u1"},
		{http.MethodGet, "/api/tasks/" + testTaskID},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPut, "/api/tasks/" + testTaskID},
		{http.MethodDelete, "/api/tasks/" + testTaskID},
	} {
		rec := doRequest(api, route.method, route.path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
	repo.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(*MockTaskRepository)
		want      struct {
			statusCode int
			database   string
		}
	}{
		{
			name: "healthy",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Ping", mock.Anything).Return(nil)
			},
			want: struct {
				statusCode int
				database   string
			}{statusCode: http.StatusOK, database: "connected"},
		},
		{
			name: "store unreachable",
			mockSetup: func(repo *MockTaskRepository) {
				repo.On("Ping", mock.Anything).Return(domain.ErrStorage)
			},
			want: struct {
				statusCode int
				database   string
			}{statusCode: http.StatusServiceUnavailable, database: "disconnected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTaskRepository{}
			tt.mockSetup(repo)
			api := newTestAPI(t, repo)

			rec := doRequest(api, http.MethodGet, "/health", nil, false)

			assert.Equal(t, tt.want.statusCode, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want.database, body["database"])
			assert.NotEmpty(t, body["timestamp"])
			repo.AssertExpectations(t)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	repo := &MockTaskRepository{}
	api := newTestAPI(t, repo)

	rec := doRequest(api, http.MethodGet, "/nothing/here", nil, false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, rec.Body.String())
}
