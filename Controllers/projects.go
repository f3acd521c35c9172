package Controllers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Workbench/Cache"
	"Workbench/Models"
	"Workbench/Tasks"
	"Workbench/middleware"
)

// ProjectController handles project CRUD and membership
type ProjectController struct {
	DB       *gorm.DB
	Cache    Cache.Cache
	Validate *Validator
}

func NewProjectController(db *gorm.DB, cache Cache.Cache, validate *Validator) *ProjectController {
	return &ProjectController{DB: db, Cache: cache, Validate: validate}
}

type projectRequest struct {
	Name        string  `json:"name" validate:"required,min=2"`
	Description *string `json:"description"`
}

type projectUpdateRequest struct {
	Name        string  `json:"name" validate:"omitempty,min=2"`
	Description *string `json:"description"`
}

type projectSummary struct {
	Models.Project
	Count struct {
		Members int64 `json:"members"`
		Tasks   int64 `json:"tasks"`
	} `json:"_count"`
}

// findProject loads a project of the caller's company.
func (p *ProjectController) findProject(companyID, id string) (Models.Project, error) {
	var project Models.Project
	err := p.DB.Where("id = ? AND company_id = ?", id, companyID).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return project, notFound("Project not found")
	}
	return project, err
}

func isProjectMember(db *gorm.DB, projectID, userID string) (bool, error) {
	var count int64
	err := db.Model(&Models.ProjectMember{}).Where("project_id = ? AND user_id = ?", projectID, userID).Count(&count).Error
	return count > 0, err
}

func (p *ProjectController) CreateProject(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var input projectRequest
	if err := p.Validate.Bind(c, &input); err != nil {
		return err
	}

	project := Models.Project{Name: input.Name, Description: input.Description, CompanyID: user.CompanyID}
	if err := p.DB.Create(&project).Error; err != nil {
		return err
	}

	slog.InfoContext(c.UserContext(), "Project created", "projectId", project.ID, "managerId", user.ID, "companyId", user.CompanyID)
	return respond(c, fiber.StatusCreated, "Project created successfully", project)
}

// GetProjects lists company projects; employees only see the ones they
// are members of.
func (p *ProjectController) GetProjects(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	page, limit, err := pageQuery(c)
	if err != nil {
		return err
	}

	query := p.DB.Model(&Models.Project{}).Where("company_id = ?", user.CompanyID)
	if user.IsEmployee() {
		query = query.Where("id IN (?)", p.DB.Model(&Models.ProjectMember{}).Select("project_id").Where("user_id = ?", user.ID))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return err
	}
	var projects []Models.Project
	err = query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&projects).Error
	if err != nil {
		return err
	}

	summaries := make([]projectSummary, 0, len(projects))
	for _, project := range projects {
		summary := projectSummary{Project: project}
		p.DB.Model(&Models.ProjectMember{}).Where("project_id = ?", project.ID).Count(&summary.Count.Members)
		p.DB.Model(&Models.Task{}).Where("project_id = ?", project.ID).Count(&summary.Count.Tasks)
		summaries = append(summaries, summary)
	}

	return respond(c, fiber.StatusOK, "Projects fetched successfully", fiber.Map{
		"projects":   summaries,
		"pagination": Tasks.NewPagination(page, limit, total),
	})
}

func (p *ProjectController) GetProject(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var project Models.Project
	err := p.DB.Preload("Members.User").
		Where("id = ? AND company_id = ?", c.Params("id"), user.CompanyID).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("Project not found")
	}
	if err != nil {
		return err
	}

	if user.IsEmployee() {
		member := false
		for _, m := range project.Members {
			if m.UserID == user.ID {
				member = true
				break
			}
		}
		if !member {
			return forbidden("You are not a member of this project")
		}
	}

	summary := projectSummary{Project: project}
	summary.Count.Members = int64(len(project.Members))
	p.DB.Model(&Models.Task{}).Where("project_id = ?", project.ID).Count(&summary.Count.Tasks)

	return respond(c, fiber.StatusOK, "Project fetched successfully", summary)
}

func (p *ProjectController) UpdateProject(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var input projectUpdateRequest
	if err := p.Validate.Bind(c, &input); err != nil {
		return err
	}
	project, err := p.findProject(user.CompanyID, c.Params("id"))
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if input.Name != "" {
		updates["name"] = input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if len(updates) > 0 {
		if err := p.DB.Model(&project).Updates(updates).Error; err != nil {
			return err
		}
	}

	slog.InfoContext(c.UserContext(), "Project updated", "projectId", project.ID, "managerId", user.ID)
	return respond(c, fiber.StatusOK, "Project updated successfully", project)
}

// DeleteProject removes the project with its tasks and memberships.
func (p *ProjectController) DeleteProject(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	project, err := p.findProject(user.CompanyID, c.Params("id"))
	if err != nil {
		return err
	}

	err = p.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", project.ID).Delete(&Models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&Models.ProjectMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
	if err != nil {
		return err
	}
	invalidateTaskListings(c, p.Cache, user.CompanyID)

	slog.InfoContext(c.UserContext(), "Project deleted", "projectId", project.ID, "managerId", user.ID)
	return respond(c, fiber.StatusOK, "Project deleted successfully", nil)
}

type addMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (p *ProjectController) AddMember(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var input addMemberRequest
	if err := p.Validate.Bind(c, &input); err != nil {
		return err
	}
	project, err := p.findProject(user.CompanyID, c.Params("id"))
	if err != nil {
		return err
	}

	var member Models.User
	err = p.DB.Where("id = ? AND company_id = ?", input.UserID, user.CompanyID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("User not found in your company")
	}
	if err != nil {
		return err
	}

	exists, err := isProjectMember(p.DB, project.ID, member.ID)
	if err != nil {
		return err
	}
	if exists {
		return badRequest("User is already a member of this project")
	}

	membership := Models.ProjectMember{UserID: member.ID, ProjectID: project.ID, User: &member}
	if err := p.DB.Omit("User").Create(&membership).Error; err != nil {
		return err
	}

	slog.InfoContext(c.UserContext(), "Member added to project", "projectId", project.ID, "userId", member.ID, "managerId", user.ID)
	return respond(c, fiber.StatusCreated, "Member added successfully", membership)
}

func (p *ProjectController) RemoveMember(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	project, err := p.findProject(user.CompanyID, c.Params("id"))
	if err != nil {
		return err
	}

	result := p.DB.Where("project_id = ? AND user_id = ?", project.ID, c.Params("userId")).Delete(&Models.ProjectMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound("User is not a member of this project")
	}

	slog.InfoContext(c.UserContext(), "Member removed from project", "projectId", project.ID, "userId", c.Params("userId"), "managerId", user.ID)
	return respond(c, fiber.StatusOK, "Member removed successfully", nil)
}
