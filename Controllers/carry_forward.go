package Controllers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Workbench/Models"
	"Workbench/Tasks"
	"Workbench/middleware"
)

// ManualRunner triggers a carry-forward run on behalf of a user.
type ManualRunner interface {
	RunManual(ctx context.Context, actor Models.SessionUser) (*Tasks.Summary, error)
}

type CarryForwardController struct {
	DB        *gorm.DB
	Scheduler ManualRunner
	Reader    Tasks.CarriedForwardReader
	Location  *time.Location
}

func NewCarryForwardController(db *gorm.DB, scheduler ManualRunner, reader Tasks.CarriedForwardReader, loc *time.Location) *CarryForwardController {
	if loc == nil {
		loc = time.Local
	}
	return &CarryForwardController{DB: db, Scheduler: scheduler, Reader: reader, Location: loc}
}

// RunCarryForward runs the engine now. Partial failures still answer 200
// with the failed tasks listed; only an unreadable task store is a 503.
func (cf *CarryForwardController) RunCarryForward(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	ctx := c.UserContext()

	summary, err := cf.Scheduler.RunManual(ctx, user)
	if err != nil && (summary == nil || errors.Is(err, Tasks.ErrStorageUnavailable)) {
		return err
	}

	slog.InfoContext(ctx, "Manual carry forward executed",
		"managerId", user.ID,
		"companyId", user.CompanyID,
		"carriedForward", summary.CarriedForward,
		"failed", len(summary.Failures),
	)

	message := fmt.Sprintf("Successfully carried forward %d tasks", summary.CarriedForward)
	if len(summary.Failures) > 0 {
		message = fmt.Sprintf("Carried forward %d tasks, %d failed", summary.CarriedForward, len(summary.Failures))
	}
	return respond(c, fiber.StatusOK, message, summary)
}

func (cf *CarryForwardController) filter(c *fiber.Ctx) (Tasks.CarriedForwardFilter, error) {
	user, _ := middleware.CurrentUser(c)
	page, limit, err := pageQuery(c)
	if err != nil {
		return Tasks.CarriedForwardFilter{}, err
	}
	return Tasks.CarriedForwardFilter{
		CompanyID: user.CompanyID,
		ProjectID: c.Query("projectId"),
		Page:      page,
		Limit:     limit,
	}, nil
}

func (cf *CarryForwardController) GetCarriedForward(c *fiber.Ctx) error {
	filter, err := cf.filter(c)
	if err != nil {
		return err
	}

	result, err := Tasks.ListCarriedForward(c.UserContext(), cf.Reader, filter)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Carried forward tasks fetched successfully", result)
}

// ExportCarriedForward renders every carried-forward task of the
// company as an xlsx workbook.
func (cf *CarryForwardController) ExportCarriedForward(c *fiber.Ctx) error {
	filter, err := cf.filter(c)
	if err != nil {
		return err
	}
	filter.Limit = Tasks.MaxPageLimit

	var all []Models.Task
	for filter.Page = 1; ; filter.Page++ {
		result, err := Tasks.ListCarriedForward(c.UserContext(), cf.Reader, filter)
		if err != nil {
			return err
		}
		all = append(all, result.Tasks...)
		if int64(filter.Page) >= result.Pagination.TotalPages {
			break
		}
	}

	buf, err := carriedForwardWorkbook(all, cf.Location)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("carried_forward_%s.xlsx", time.Now().In(cf.Location).Format("2006-01-02"))
	c.Set("Content-Type", xlsxContentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	return c.Send(buf.Bytes())
}

// ListRuns pages through the run audit: the caller's manual runs and
// every scheduled run.
func (cf *CarryForwardController) ListRuns(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	page, limit, err := pageQuery(c)
	if err != nil {
		return err
	}

	query := cf.DB.WithContext(c.UserContext()).
		Model(&Models.CarryForwardRun{}).
		Where("company_id = ? OR company_id IS NULL", user.CompanyID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return err
	}
	runs := []Models.CarryForwardRun{}
	err = query.Session(&gorm.Session{}).
		Order("started_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&runs).Error
	if err != nil {
		return err
	}

	return respond(c, fiber.StatusOK, "Carry forward runs fetched successfully", fiber.Map{
		"runs":       runs,
		"pagination": Tasks.NewPagination(page, limit, total),
	})
}
