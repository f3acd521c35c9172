package Tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Workbench/Models"
)

type fixture struct {
	db       *gorm.DB
	store    *GormStore
	company  Models.Company
	manager  Models.User
	employee Models.User
	project  Models.Project
}

var companySeq int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Models.Connect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedCompany(t *testing.T, db *gorm.DB, name string) (Models.Company, Models.User, Models.User, Models.Project) {
	t.Helper()
	companySeq++
	company := Models.Company{Sequence: companySeq, Code: Models.CompanyCode(companySeq), Name: name}
	require.NoError(t, db.Create(&company).Error)

	manager := Models.User{Name: name + " Manager", Email: fmt.Sprintf("manager-%d@example.com", companySeq),
		Password: "x", Role: Models.RoleManager, IsActive: true, CompanyID: company.ID}
	employee := Models.User{Name: name + " Employee", Email: fmt.Sprintf("employee-%d@example.com", companySeq),
		Password: "x", Role: Models.RoleEmployee, IsActive: true, CompanyID: company.ID}
	require.NoError(t, db.Create(&manager).Error)
	require.NoError(t, db.Create(&employee).Error)

	project := Models.Project{Name: name + " Project", CompanyID: company.ID}
	require.NoError(t, db.Create(&project).Error)
	return company, manager, employee, project
}

func newFixture(t *testing.T) *fixture {
	db := openTestDB(t)
	company, manager, employee, project := seedCompany(t, db, "Acme")
	return &fixture{db: db, store: NewGormStore(db), company: company, manager: manager, employee: employee, project: project}
}

func (f *fixture) createTask(t *testing.T, title string, status Models.TaskStatus, start, end time.Time) Models.Task {
	t.Helper()
	assignee := f.employee.ID
	task := Models.Task{
		Title:        title,
		Type:         Models.TaskTypeFeature,
		Status:       status,
		StartTime:    start,
		EndTime:      end,
		ProjectID:    f.project.ID,
		CreatedByID:  f.manager.ID,
		AssignedToID: &assignee,
	}
	require.NoError(t, f.db.Create(&task).Error)
	return task
}

func TestGormStoreFindEligible(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)

	late := f.createTask(t, "late", Models.TaskStatusInProgress, past.Add(time.Hour), past.Add(2*time.Hour))
	early := f.createTask(t, "early", Models.TaskStatusPending, past, past.Add(time.Hour))
	f.createTask(t, "done", Models.TaskStatusCompleted, past, past.Add(time.Hour))
	f.createTask(t, "reviewed", Models.TaskStatusReviewed, past, past.Add(time.Hour))
	f.createTask(t, "future", Models.TaskStatusPending, now, now.Add(time.Hour))
	carried := f.createTask(t, "carried", Models.TaskStatusPending, past, past.Add(time.Hour))
	require.NoError(t, f.db.Model(&carried).UpdateColumn("is_carried_forward", true).Error)

	tasks, err := f.store.FindEligibleIncompleteTasks(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, early.ID, tasks[0].ID)
	assert.Equal(t, late.ID, tasks[1].ID)
	require.NotNil(t, tasks[0].Project)
	assert.Equal(t, f.company.ID, tasks[0].Project.CompanyID)
	require.NotNil(t, tasks[0].AssignedTo)
	assert.Equal(t, f.employee.ID, tasks[0].AssignedTo.ID)
}

func TestGormStoreUpdateTaskScheduleIsConditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	task := f.createTask(t, "report", Models.TaskStatusPending, end.Add(-8*time.Hour), end)

	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	update := ScheduleUpdate{
		IsCarriedForward: true,
		OriginalDueDate:  &end,
		StartTime:        midnight,
		EndTime:          midnight.Add(8 * time.Hour),
	}

	updated, err := f.store.UpdateTaskSchedule(ctx, task.ID, update)
	require.NoError(t, err)
	assert.True(t, updated.IsCarriedForward)
	require.NotNil(t, updated.OriginalDueDate)
	assert.True(t, updated.OriginalDueDate.Equal(end))
	assert.True(t, updated.StartTime.Equal(midnight))
	assert.Equal(t, Models.TaskStatusPending, updated.Status)
	require.NotNil(t, updated.Project)

	_, err = f.store.UpdateTaskSchedule(ctx, task.ID, update)
	assert.ErrorIs(t, err, ErrConcurrentCarryForward)

	_, err = f.store.UpdateTaskSchedule(ctx, "missing", update)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.True(t, IsNotFound(err))
}

func TestGormStoreKeepsFirstOriginalDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	task := f.createTask(t, "report", Models.TaskStatusPending, first.Add(-time.Hour), first)
	require.NoError(t, f.db.Model(&task).UpdateColumn("original_due_date", first).Error)

	later := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	updated, err := f.store.UpdateTaskSchedule(ctx, task.ID, ScheduleUpdate{
		IsCarriedForward: true,
		OriginalDueDate:  &later,
		StartTime:        later,
		EndTime:          later.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.OriginalDueDate)
	assert.True(t, updated.OriginalDueDate.Equal(first))
}

func TestGormStoreConcurrentUpdatesApplyOnce(t *testing.T) {
	f := newFixture(t)
	end := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	task := f.createTask(t, "report", Models.TaskStatusPending, end.Add(-time.Hour), end)
	update := ScheduleUpdate{IsCarriedForward: true, OriginalDueDate: &end, StartTime: end, EndTime: end.Add(time.Hour)}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		lost    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.UpdateTaskSchedule(context.Background(), task.ID, update)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case assert.ErrorIs(t, err, ErrConcurrentCarryForward):
				lost++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)
	assert.Equal(t, 7, lost)
}

func TestGormStoreEngineEndToEnd(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	task := f.createTask(t, "report", Models.TaskStatusPending, yesterday, yesterday.Add(8*time.Hour))

	engine := NewEngine(f.store, WithLocation(time.UTC), WithClock(func() time.Time { return now }),
		WithWorkers(2), WithLogger(quietLogger()))

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.CarriedForward)
	assert.Equal(t, f.project.Name, summary.Tasks[0].Project.Name)
	assert.Equal(t, f.employee.Email, summary.Tasks[0].AssignedTo.Email)
	assert.Equal(t, []string{f.company.ID}, summary.CompanyIDs())

	var stored Models.Task
	require.NoError(t, f.db.First(&stored, "id = ?", task.ID).Error)
	assert.True(t, stored.IsCarriedForward)
	assert.True(t, stored.StartTime.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, stored.EndTime.Equal(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)))

	again, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.CarriedForward)
}

func TestGormStoreEngineInConfiguredZone(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	for _, loc := range []*time.Location{
		time.FixedZone("EST", -5*60*60),
		time.FixedZone("IST", 5*60*60+30*60),
	} {
		t.Run(loc.String(), func(t *testing.T) {
			f := newFixture(t)
			local := now.In(loc)
			overdue := f.createTask(t, "overdue", Models.TaskStatusPending, local.Add(-3*time.Hour), local.Add(-time.Hour))
			upcoming := f.createTask(t, "upcoming", Models.TaskStatusInProgress, local.Add(time.Hour), local.Add(3*time.Hour))

			engine := NewEngine(f.store, WithLocation(loc), WithClock(func() time.Time { return now }),
				WithWorkers(2), WithLogger(quietLogger()))

			summary, err := engine.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, 1, summary.CarriedForward)
			assert.Equal(t, 0, summary.Skipped)
			assert.Equal(t, overdue.ID, summary.Tasks[0].TaskID)

			midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

			var stored Models.Task
			require.NoError(t, f.db.First(&stored, "id = ?", overdue.ID).Error)
			assert.True(t, stored.IsCarriedForward)
			assert.True(t, stored.StartTime.Equal(midnight), "start %s, want %s", stored.StartTime, midnight)
			assert.True(t, stored.EndTime.Equal(midnight.Add(2*time.Hour)))
			assert.Equal(t, time.UTC, stored.StartTime.Location())
			require.NotNil(t, stored.OriginalDueDate)
			assert.True(t, stored.OriginalDueDate.Equal(now.Add(-time.Hour)))

			require.NoError(t, f.db.First(&stored, "id = ?", upcoming.ID).Error)
			assert.False(t, stored.IsCarriedForward)
			assert.Equal(t, time.UTC, stored.EndTime.Location())
		})
	}
}

// completingStore completes every task right after the sweep reads it.
type completingStore struct {
	*GormStore
}

func (s completingStore) FindEligibleIncompleteTasks(ctx context.Context, now time.Time) ([]Models.Task, error) {
	tasks, err := s.GormStore.FindEligibleIncompleteTasks(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		err := s.DB.Model(&Models.Task{}).Where("id = ?", task.ID).Update("status", Models.TaskStatusCompleted).Error
		if err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func TestGormStoreUpdateTaskScheduleSkipsClosedTasks(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	task := f.createTask(t, "report", Models.TaskStatusInProgress, end.Add(-8*time.Hour), end)

	engine := NewEngine(completingStore{f.store}, WithLocation(time.UTC), WithClock(func() time.Time { return now }),
		WithLogger(quietLogger()))

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CarriedForward)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, summary.Failures)

	var stored Models.Task
	require.NoError(t, f.db.First(&stored, "id = ?", task.ID).Error)
	assert.Equal(t, Models.TaskStatusCompleted, stored.Status)
	assert.False(t, stored.IsCarriedForward)
	assert.Nil(t, stored.OriginalDueDate)
	assert.True(t, stored.EndTime.Equal(end))
}

func TestGormStoreFindCarriedForwardTasksScopesAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		task := f.createTask(t, fmt.Sprintf("carried-%d", i), Models.TaskStatusPending, base, base.Add(time.Hour))
		require.NoError(t, f.db.Model(&task).UpdateColumns(map[string]interface{}{
			"is_carried_forward": true,
			"updated_at":         base.Add(time.Duration(i) * time.Hour),
		}).Error)
		ids = append(ids, task.ID)
	}
	f.createTask(t, "not carried", Models.TaskStatusPending, base, base.Add(time.Hour))

	_, otherManager, otherEmployee, otherProject := seedCompany(t, f.db, "Globex")
	assignee := otherEmployee.ID
	foreign := Models.Task{Title: "foreign", Type: Models.TaskTypeBug, Status: Models.TaskStatusPending,
		StartTime: base, EndTime: base.Add(time.Hour), ProjectID: otherProject.ID,
		CreatedByID: otherManager.ID, AssignedToID: &assignee, IsCarriedForward: true}
	require.NoError(t, f.db.Create(&foreign).Error)

	tasks, total, err := f.store.FindCarriedForwardTasks(ctx, CarriedForwardFilter{CompanyID: f.company.ID, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, tasks, 2)
	assert.Equal(t, ids[2], tasks[0].ID)
	assert.Equal(t, ids[1], tasks[1].ID)
	require.NotNil(t, tasks[0].CreatedBy)
	assert.Equal(t, f.manager.ID, tasks[0].CreatedBy.ID)

	tasks, _, err = f.store.FindCarriedForwardTasks(ctx, CarriedForwardFilter{CompanyID: f.company.ID, Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, ids[0], tasks[0].ID)

	tasks, total, err = f.store.FindCarriedForwardTasks(ctx, CarriedForwardFilter{CompanyID: f.company.ID, ProjectID: otherProject.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tasks)
}

func TestGormStoreSaveTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	task := f.createTask(t, "report", Models.TaskStatusPending, now, now.Add(time.Hour))

	require.NoError(t, Start(&task, f.employee.ID, now))
	require.NoError(t, f.store.SaveTransition(ctx, &task, Models.TaskStatusPending))

	var stored Models.Task
	require.NoError(t, f.db.First(&stored, "id = ?", task.ID).Error)
	assert.Equal(t, Models.TaskStatusInProgress, stored.Status)
	require.NotNil(t, stored.ActualStartTime)

	stale := stored
	stale.Status = Models.TaskStatusPending
	require.NoError(t, Complete(&stale, f.employee.ID, now))
	err := f.store.SaveTransition(ctx, &stale, Models.TaskStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
