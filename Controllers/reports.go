package Controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Workbench/Models"
	"Workbench/middleware"
)

// ReportController serves read-only performance reports. Rows are
// loaded once per report and aggregated in Go.
type ReportController struct {
	DB *gorm.DB
}

func NewReportController(db *gorm.DB) *ReportController {
	return &ReportController{DB: db}
}

type taskBreakdown struct {
	ByStatus  []statusCount      `json:"byStatus"`
	ByType    []typeCount        `json:"byType,omitempty"`
	ByProject []groupPerformance `json:"byProject,omitempty"`
}

type reportOverview struct {
	TotalEmployees *int64  `json:"totalEmployees,omitempty"`
	TotalMembers   *int64  `json:"totalMembers,omitempty"`
	TotalProjects  *int64  `json:"totalProjects,omitempty"`
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	CompletionRate float64 `json:"completionRate"`
	OnTimeRate     float64 `json:"onTimeRate"`
}

// dateRange parses startDate/endDate. Both must be given for the filter
// to apply; a bare date as endDate covers that whole day.
func dateRange(c *fiber.Ctx) (*time.Time, *time.Time, error) {
	rawStart, rawEnd := c.Query("startDate"), c.Query("endDate")
	if rawStart == "" || rawEnd == "" {
		return nil, nil, nil
	}
	start, _, err := parseReportDate(rawStart)
	if err != nil {
		return nil, nil, invalidField("startDate", "startDate must be a date (YYYY-MM-DD) or RFC3339 time")
	}
	end, dateOnly, err := parseReportDate(rawEnd)
	if err != nil {
		return nil, nil, invalidField("endDate", "endDate must be a date (YYYY-MM-DD) or RFC3339 time")
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if end.Before(start) {
		return nil, nil, invalidField("endDate", "endDate must not be before startDate")
	}
	start, end = start.UTC(), end.UTC()
	return &start, &end, nil
}

func parseReportDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	return t, true, err
}

// loadTasks returns the tasks matching scope, created inside the
// requested date range when one is given.
func (r *ReportController) loadTasks(c *fiber.Ctx, scope func(*gorm.DB) *gorm.DB) ([]Models.Task, error) {
	start, end, err := dateRange(c)
	if err != nil {
		return nil, err
	}

	query := r.DB.WithContext(c.UserContext()).Model(&Models.Task{}).Scopes(scope)
	if start != nil {
		query = query.Where("created_at BETWEEN ? AND ?", *start, *end)
	}

	var tasks []Models.Task
	err = query.Preload("Project").Preload("AssignedTo").Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

func companyScope(db *gorm.DB, companyID string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("project_id IN (?)", db.Model(&Models.Project{}).Select("id").Where("company_id = ?", companyID))
	}
}

func (r *ReportController) GetCompanyReport(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	tasks, err := r.loadTasks(c, companyScope(r.DB, user.CompanyID))
	if err != nil {
		return err
	}

	var employees, projects int64
	if err := r.DB.Model(&Models.User{}).Where("company_id = ? AND role = ?", user.CompanyID, Models.RoleEmployee).Count(&employees).Error; err != nil {
		return err
	}
	if err := r.DB.Model(&Models.Project{}).Where("company_id = ?", user.CompanyID).Count(&projects).Error; err != nil {
		return err
	}

	done := deliveredTasks(tasks)
	return respond(c, fiber.StatusOK, "Company report fetched successfully", fiber.Map{
		"overview": reportOverview{
			TotalEmployees: &employees,
			TotalProjects:  &projects,
			TotalTasks:     len(tasks),
			CompletedTasks: len(done),
			CompletionRate: completionRate(tasks),
			OnTimeRate:     onTimeRate(done),
		},
		"taskBreakdown": taskBreakdown{
			ByStatus:  byStatus(tasks),
			ByType:    byType(tasks),
			ByProject: byProject(tasks),
		},
		"performance": performance(done),
	})
}

func (r *ReportController) GetProjectReport(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var project Models.Project
	err := r.DB.Where("id = ? AND company_id = ?", c.Params("projectId"), user.CompanyID).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("Project not found")
	}
	if err != nil {
		return err
	}

	tasks, err := r.loadTasks(c, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("project_id = ?", project.ID)
	})
	if err != nil {
		return err
	}

	var members int64
	if err := r.DB.Model(&Models.ProjectMember{}).Where("project_id = ?", project.ID).Count(&members).Error; err != nil {
		return err
	}

	done := deliveredTasks(tasks)
	return respond(c, fiber.StatusOK, "Project report fetched successfully", fiber.Map{
		"project": fiber.Map{
			"id":          project.ID,
			"name":        project.Name,
			"description": project.Description,
		},
		"overview": reportOverview{
			TotalMembers:   &members,
			TotalTasks:     len(tasks),
			CompletedTasks: len(done),
			CompletionRate: completionRate(tasks),
			OnTimeRate:     onTimeRate(done),
		},
		"taskBreakdown": taskBreakdown{
			ByStatus: byStatus(tasks),
			ByType:   byType(tasks),
		},
		"performance":       performance(done),
		"memberPerformance": byAssignee(tasks),
	})
}

// employeeReport is shared by the manager view of an employee and the
// employee's own report.
func (r *ReportController) employeeReport(c *fiber.Ctx, employee Models.User) (fiber.Map, error) {
	tasks, err := r.loadTasks(c, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("assigned_to_id = ?", employee.ID)
	})
	if err != nil {
		return nil, err
	}

	var projects int64
	if err := r.DB.Model(&Models.ProjectMember{}).Where("user_id = ?", employee.ID).Count(&projects).Error; err != nil {
		return nil, err
	}

	done := deliveredTasks(tasks)
	return fiber.Map{
		"overview": reportOverview{
			TotalProjects:  &projects,
			TotalTasks:     len(tasks),
			CompletedTasks: len(done),
			CompletionRate: completionRate(tasks),
			OnTimeRate:     onTimeRate(done),
		},
		"taskBreakdown": taskBreakdown{
			ByStatus:  byStatus(tasks),
			ByProject: byProject(tasks),
		},
		"performance":          performance(done),
		"recentCompletedTasks": recentCompleted(done, recentCompletedLimit),
	}, nil
}

func (r *ReportController) GetEmployeeReport(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var employee Models.User
	err := r.DB.Where("id = ? AND company_id = ? AND role = ?", c.Params("employeeId"), user.CompanyID, Models.RoleEmployee).
		First(&employee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("Employee not found")
	}
	if err != nil {
		return err
	}

	report, err := r.employeeReport(c, employee)
	if err != nil {
		return err
	}
	report["employee"] = employee.Ref()
	return respond(c, fiber.StatusOK, "Employee report fetched successfully", report)
}

func (r *ReportController) GetMyReport(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	me := Models.User{Base: Models.Base{ID: user.ID}, Name: user.Name, Email: user.Email}
	report, err := r.employeeReport(c, me)
	if err != nil {
		return err
	}

	var memberships []Models.ProjectMember
	if err := r.DB.Preload("Project").Where("user_id = ?", user.ID).Find(&memberships).Error; err != nil {
		return err
	}
	myProjects := make([]*Models.ProjectRef, 0, len(memberships))
	for _, m := range memberships {
		if ref := m.Project.Ref(); ref != nil {
			myProjects = append(myProjects, ref)
		}
	}
	report["myProjects"] = myProjects

	return respond(c, fiber.StatusOK, "Your report fetched successfully", report)
}
