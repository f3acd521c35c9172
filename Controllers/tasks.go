package Controllers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Workbench/Cache"
	"Workbench/Models"
	"Workbench/Tasks"
	"Workbench/middleware"
)

// TaskController serves task CRUD and the state machine endpoints
type TaskController struct {
	DB       *gorm.DB
	Store    *Tasks.GormStore
	Cache    Cache.Cache
	Validate *Validator
	now      func() time.Time
}

func NewTaskController(db *gorm.DB, store *Tasks.GormStore, cache Cache.Cache, validate *Validator) *TaskController {
	if cache == nil {
		cache = Cache.Noop{}
	}
	return &TaskController{DB: db, Store: store, Cache: cache, Validate: validate, now: time.Now}
}

type createTaskRequest struct {
	Title        string          `json:"title" validate:"required,min=2"`
	Description  *string         `json:"description"`
	Type         Models.TaskType `json:"type" validate:"required,oneof=FEATURE BUG"`
	ProjectID    string          `json:"projectId" validate:"required"`
	AssignedToID *string         `json:"assignedToId"`
	StartTime    time.Time       `json:"startTime" validate:"required"`
	EndTime      time.Time       `json:"endTime" validate:"required"`
}

type updateTaskRequest struct {
	Title        string          `json:"title" validate:"omitempty,min=2"`
	Description  *string         `json:"description"`
	Type         Models.TaskType `json:"type" validate:"omitempty,oneof=FEATURE BUG"`
	AssignedToID *string         `json:"assignedToId"`
	StartTime    *time.Time      `json:"startTime"`
	EndTime      *time.Time      `json:"endTime"`
}

type taskListing struct {
	Tasks      []Models.Task    `json:"tasks"`
	Pagination Tasks.Pagination `json:"pagination"`
}

// companyTasks scopes a task query to projects of companyID.
func (t *TaskController) companyTasks(ctx context.Context, companyID string) *gorm.DB {
	return t.DB.WithContext(ctx).Model(&Models.Task{}).
		Where("project_id IN (?)", t.DB.Model(&Models.Project{}).Select("id").Where("company_id = ?", companyID))
}

func (t *TaskController) findTask(ctx context.Context, companyID, id string) (Models.Task, error) {
	var task Models.Task
	err := t.companyTasks(ctx, companyID).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return task, notFound("Task not found")
	}
	return task, err
}

func (t *TaskController) loadTask(ctx context.Context, id string) (Models.Task, error) {
	var task Models.Task
	err := t.DB.WithContext(ctx).
		Preload("Project").
		Preload("AssignedTo").
		Preload("CreatedBy").
		Preload("ReviewedBy").
		First(&task, "id = ?", id).Error
	return task, err
}

// checkAssignee verifies the assignee belongs to the company and the project.
func (t *TaskController) checkAssignee(companyID, projectID, assigneeID string) error {
	var count int64
	if err := t.DB.Model(&Models.User{}).Where("id = ? AND company_id = ?", assigneeID, companyID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound("Assignee not found in your company")
	}
	member, err := isProjectMember(t.DB, projectID, assigneeID)
	if err != nil {
		return err
	}
	if !member {
		return badRequest("Assignee is not a member of this project")
	}
	return nil
}

func (t *TaskController) CreateTask(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	ctx := c.UserContext()

	var input createTaskRequest
	if err := t.Validate.Bind(c, &input); err != nil {
		return err
	}
	if !input.StartTime.Before(input.EndTime) {
		return invalidField("endTime", "endTime must be after startTime")
	}

	var project Models.Project
	err := t.DB.WithContext(ctx).Where("id = ? AND company_id = ?", input.ProjectID, user.CompanyID).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("Project not found")
	}
	if err != nil {
		return err
	}

	if input.AssignedToID != nil && *input.AssignedToID != "" {
		if err := t.checkAssignee(user.CompanyID, project.ID, *input.AssignedToID); err != nil {
			return err
		}
	} else {
		input.AssignedToID = nil
	}

	task := Models.Task{
		Title:        input.Title,
		Description:  input.Description,
		Type:         input.Type,
		Status:       Models.TaskStatusPending,
		StartTime:    input.StartTime,
		EndTime:      input.EndTime,
		ProjectID:    project.ID,
		CreatedByID:  user.ID,
		AssignedToID: input.AssignedToID,
	}
	if err := t.DB.WithContext(ctx).Create(&task).Error; err != nil {
		return err
	}
	invalidateTaskListings(c, t.Cache, user.CompanyID)

	created, err := t.loadTask(ctx, task.ID)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Task created",
		"taskId", task.ID,
		"projectId", project.ID,
		"managerId", user.ID,
		"assignedToId", Models.StringValue(task.AssignedToID),
	)
	return respond(c, fiber.StatusCreated, "Task created successfully", created)
}

// GetTasks lists tasks. Without projectId employees only see their own
// tasks and managers see the whole company; manager listings are cached.
func (t *TaskController) GetTasks(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	ctx := c.UserContext()

	page, limit, err := pageQuery(c)
	if err != nil {
		return err
	}
	projectID := c.Query("projectId")
	status := Models.TaskStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return invalidField("status", "status must be one of PENDING IN_PROGRESS COMPLETED REVIEWED")
	}

	query := t.companyTasks(ctx, user.CompanyID)
	if projectID != "" {
		var count int64
		if err := t.DB.Model(&Models.Project{}).Where("id = ? AND company_id = ?", projectID, user.CompanyID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return notFound("Project not found")
		}
		if user.IsEmployee() {
			member, err := isProjectMember(t.DB, projectID, user.ID)
			if err != nil {
				return err
			}
			if !member {
				return forbidden("You are not a member of this project")
			}
		}
		query = query.Where("project_id = ?", projectID)
	} else if user.IsEmployee() {
		query = query.Where("assigned_to_id = ?", user.ID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var cacheKey string
	if user.IsManager() {
		cacheKey = Cache.CompanyTasksKey(user.CompanyID, fmt.Sprintf("list:%s:%s:%d:%d", projectID, status, page, limit))
		var cached taskListing
		if hit, err := t.Cache.Get(ctx, cacheKey, &cached); err != nil {
			slog.WarnContext(ctx, "Error reading task cache", "key", cacheKey, "error", err)
		} else if hit {
			c.Set("X-Cache", "HIT")
			return respond(c, fiber.StatusOK, "Tasks fetched successfully", cached)
		}
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return err
	}
	listing := taskListing{Tasks: []Models.Task{}, Pagination: Tasks.NewPagination(page, limit, total)}
	err = query.Session(&gorm.Session{}).
		Preload("Project").
		Preload("AssignedTo").
		Preload("CreatedBy").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&listing.Tasks).Error
	if err != nil {
		return err
	}

	if cacheKey != "" {
		if err := t.Cache.Set(ctx, cacheKey, listing, Cache.TaskListingTTL); err != nil {
			slog.WarnContext(ctx, "Error caching task listing", "key", cacheKey, "error", err)
		}
	}
	return respond(c, fiber.StatusOK, "Tasks fetched successfully", listing)
}

func (t *TaskController) GetTask(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	ctx := c.UserContext()

	found, err := t.findTask(ctx, user.CompanyID, c.Params("id"))
	if err != nil {
		return err
	}
	if user.IsEmployee() && !found.IsAssignedTo(user.ID) {
		return forbidden("You are not authorized to view this task")
	}

	task, err := t.loadTask(ctx, found.ID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Task fetched successfully", task)
}

// UpdateTask edits the descriptive fields and the schedule. Status and
// carry-forward bookkeeping only change through their own endpoints.
func (t *TaskController) UpdateTask(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	ctx := c.UserContext()

	var input updateTaskRequest
	if err := t.Validate.Bind(c, &input); err != nil {
		return err
	}
	task, err := t.findTask(ctx, user.CompanyID, c.Params("id"))
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if input.Title != "" {
		updates["title"] = input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Type != "" {
		updates["type"] = input.Type
	}
	if input.AssignedToID != nil && *input.AssignedToID != "" {
		if err := t.checkAssignee(user.CompanyID, task.ProjectID, *input.AssignedToID); err != nil {
			return err
		}
		updates["assigned_to_id"] = *input.AssignedToID
	}

	start, end := task.StartTime, task.EndTime
	if input.StartTime != nil {
		start = *input.StartTime
		updates["start_time"] = start.UTC()
	}
	if input.EndTime != nil {
		end = *input.EndTime
		updates["end_time"] = end.UTC()
	}
	if !start.Before(end) {
		return invalidField("endTime", "endTime must be after startTime")
	}

	if len(updates) > 0 {
		if err := t.DB.WithContext(ctx).Model(&task).Updates(updates).Error; err != nil {
			return err
		}
		invalidateTaskListings(c, t.Cache, user.CompanyID)
	}

	updated, err := t.loadTask(ctx, task.ID)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Task updated", "taskId", task.ID, "managerId", user.ID)
	return respond(c, fiber.StatusOK, "Task updated successfully", updated)
}

func (t *TaskController) DeleteTask(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	ctx := c.UserContext()

	task, err := t.findTask(ctx, user.CompanyID, c.Params("id"))
	if err != nil {
		return err
	}
	if err := t.DB.WithContext(ctx).Delete(&task).Error; err != nil {
		return err
	}
	invalidateTaskListings(c, t.Cache, user.CompanyID)

	slog.InfoContext(ctx, "Task deleted", "taskId", task.ID, "managerId", user.ID)
	return respond(c, fiber.StatusOK, "Task deleted successfully", nil)
}

func (t *TaskController) StartTask(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	task, err := t.transition(c, user, func(task *Models.Task, now time.Time) error {
		return Tasks.Start(task, user.ID, now)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(c.UserContext(), "Task started", "taskId", task.ID, "employeeId", user.ID)
	return respond(c, fiber.StatusOK, "Task started successfully", task)
}

func (t *TaskController) CompleteTask(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	task, err := t.transition(c, user, func(task *Models.Task, now time.Time) error {
		return Tasks.Complete(task, user.ID, now)
	})
	if err != nil {
		return err
	}

	actual := 0.0
	if task.ActualStartTime != nil && task.ActualCompletedTime != nil {
		actual = task.ActualCompletedTime.Sub(*task.ActualStartTime).Minutes()
	}
	slog.InfoContext(c.UserContext(), "Task completed",
		"taskId", task.ID,
		"employeeId", user.ID,
		"allocatedMinutes", task.Duration().Minutes(),
		"actualMinutes", actual,
	)
	return respond(c, fiber.StatusOK, "Task completed successfully", task)
}

func (t *TaskController) ReviewTask(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	task, err := t.transition(c, user, func(task *Models.Task, now time.Time) error {
		var companyID string
		err := t.DB.Model(&Models.Project{}).Select("company_id").Where("id = ?", task.ProjectID).Scan(&companyID).Error
		if err != nil {
			return err
		}
		return Tasks.Review(task, user, companyID, now)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(c.UserContext(), "Task reviewed", "taskId", task.ID, "managerId", user.ID)
	return respond(c, fiber.StatusOK, "Task reviewed successfully", task)
}

// transition loads the task, applies apply and persists the result
// conditionally on the status it was loaded with.
func (t *TaskController) transition(c *fiber.Ctx, user Models.SessionUser, apply func(*Models.Task, time.Time) error) (Models.Task, error) {
	ctx := c.UserContext()

	task, err := t.findTask(ctx, user.CompanyID, c.Params("id"))
	if err != nil {
		return task, err
	}
	from := task.Status
	if err := apply(&task, t.now()); err != nil {
		return task, err
	}
	if err := t.Store.SaveTransition(ctx, &task, from); err != nil {
		return task, err
	}
	invalidateTaskListings(c, t.Cache, user.CompanyID)

	return t.loadTask(ctx, task.ID)
}

// invalidateTaskListings drops every cached task listing of companyID.
// Failures are logged, not returned.
func invalidateTaskListings(c *fiber.Ctx, cache Cache.Cache, companyID string) {
	if cache == nil {
		return
	}
	if err := cache.DeletePattern(c.UserContext(), Cache.CompanyTasksPattern(companyID)); err != nil {
		slog.WarnContext(c.UserContext(), "Error invalidating task cache", "companyId", companyID, "error", err)
	}
}
