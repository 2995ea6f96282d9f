package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/andriy-shtumpf/todo-test/internal/auth"
	domain "github.com/andriy-shtumpf/todo-test/internal/domain/errors"
	"github.com/andriy-shtumpf/todo-test/internal/domain/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
)

// TaskRepository is the data-access contract the HTTP layer consumes.
type TaskRepository interface {
	ListAll(ctx context.Context) ([]models.Task, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Create(ctx context.Context, owner models.User, req models.CreateTaskRequest) (*models.Task, error)
	Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type TaskAPI struct {
	httpSrv  *http.Server
	repo     TaskRepository
	verifier auth.Verifier
}

func NewTaskAPI(repo TaskRepository, verifier auth.Verifier, cfg *Config) *TaskAPI {
	if repo == nil || verifier == nil {
		return nil
	}
	if cfg == nil {
		cfg = &Config{Addr: defaultAddr, Port: defaultPort, CORSOrigin: defaultCORSOrigin}
	}

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr: fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		},
		repo:     repo,
		verifier: verifier,
	}
	api.configRoutes(cfg.CORSOrigin)

	return api
}

func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return domain.ErrInternal
	}
	return api.httpSrv.ListenAndServe()
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

func (api *TaskAPI) configRoutes(corsOrigin string) {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": domain.ErrRouteNotFound.Error()})
	})

	router.GET("/health", api.health)

	tasks := router.Group("/api/tasks")
	tasks.Use(Authenticate(api.verifier))
	{
		tasks.GET("", api.getTasks)
		tasks.GET("/user/:userID", api.getUserTasks)
		tasks.GET("/:taskID", api.getTaskByID)
		tasks.POST("", api.createTask)
		tasks.PUT("/:taskID", api.updateTask)
		tasks.DELETE("/:taskID", api.deleteTask)
	}

	api.httpSrv.Handler = router
}

func (api *TaskAPI) health(ctx *gin.Context) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if err := api.repo.Ping(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"timestamp": timestamp,
			"database":  "disconnected",
			"error":     err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": timestamp,
		"database":  "connected",
	})
}

func (api *TaskAPI) getTasks(ctx *gin.Context) {
	tasks, err := api.repo.ListAll(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tasks"})
		return
	}
	ctx.JSON(http.StatusOK, tasks)
}

func (api *TaskAPI) getUserTasks(ctx *gin.Context) {
	userID := ctx.Param("userID")

	tasks, err := api.repo.ListByOwner(ctx.Request.Context(), userID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user tasks"})
		return
	}
	ctx.JSON(http.StatusOK, tasks)
}

func (api *TaskAPI) getTaskByID(ctx *gin.Context) {
	id := ctx.Param("taskID")

	task, err := api.repo.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": domain.ErrTaskNotFound.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch task"})
		return
	}
	ctx.JSON(http.StatusOK, task)
}

var allowedTaskStatuses = map[string]bool{
	models.StatusCreated:    true,
	models.StatusInProgress: true,
	models.StatusCompleted:  true,
}

func (api *TaskAPI) createTask(ctx *gin.Context) {
	var req models.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrBadRequest.Error()})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	// owner always comes from the verified token, never the body
	identity, ok := identityFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthenticated.Error()})
		return
	}
	owner := models.User{ID: identity.SubjectID, Email: identity.Email}

	task, err := api.repo.Create(ctx.Request.Context(), owner, req)
	if err != nil {
		if errors.Is(err, domain.ErrTitleRequired) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrTitleRequired.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	ctx.JSON(http.StatusCreated, task)
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	id := ctx.Param("taskID")

	var patch models.TaskPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrBadRequest.Error()})
		return
	}

	if patch.Status.Set && (patch.Status.Value == nil || !allowedTaskStatuses[*patch.Status.Value]) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidStatus.Error()})
		return
	}

	task, err := api.repo.Update(ctx.Request.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoFieldsToUpdate):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrNoFieldsToUpdate.Error()})
		case errors.Is(err, domain.ErrTaskNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": domain.ErrTaskNotFound.Error()})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		}
		return
	}

	ctx.JSON(http.StatusOK, task)
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	id := ctx.Param("taskID")

	if err := api.repo.Delete(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": domain.ErrTaskNotFound.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func validationErrorToErrorResponse(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			switch verr.Field() {
			case "Title":
				return domain.ErrTitleRequired
			case "Status":
				return domain.ErrInvalidStatus
			}
		}
	}
	return domain.ErrValidationFailed
}
