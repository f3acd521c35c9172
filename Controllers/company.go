package Controllers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Workbench/Models"
	"Workbench/Tasks"
	"Workbench/middleware"
)

type CompanyController struct {
	DB       *gorm.DB
	Validate *Validator
}

func NewCompanyController(db *gorm.DB, validate *Validator) *CompanyController {
	return &CompanyController{DB: db, Validate: validate}
}

type companyDetails struct {
	Models.Company
	Count struct {
		Users    int64 `json:"users"`
		Projects int64 `json:"projects"`
	} `json:"_count"`
}

// GetCompany returns the caller's company with member and project counts
func (cc *CompanyController) GetCompany(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var details companyDetails
	if err := cc.DB.First(&details.Company, "id = ?", user.CompanyID).Error; err != nil {
		return notFound("Company not found")
	}
	if err := cc.DB.Model(&Models.User{}).Where("company_id = ?", user.CompanyID).Count(&details.Count.Users).Error; err != nil {
		return err
	}
	if err := cc.DB.Model(&Models.Project{}).Where("company_id = ?", user.CompanyID).Count(&details.Count.Projects).Error; err != nil {
		return err
	}

	return respond(c, fiber.StatusOK, "Company details fetched successfully", details)
}

type updateCompanyRequest struct {
	Name  string `json:"name" validate:"omitempty,min=2"`
	Image string `json:"image" validate:"omitempty,url"`
}

func (cc *CompanyController) UpdateCompany(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var input updateCompanyRequest
	if err := cc.Validate.Bind(c, &input); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if input.Name != "" {
		updates["name"] = input.Name
	}
	if input.Image != "" {
		updates["image"] = input.Image
	}

	var company Models.Company
	if err := cc.DB.First(&company, "id = ?", user.CompanyID).Error; err != nil {
		return notFound("Company not found")
	}
	if len(updates) > 0 {
		if err := cc.DB.Model(&company).Updates(updates).Error; err != nil {
			return err
		}
	}

	slog.InfoContext(c.UserContext(), "Company updated", "companyId", company.ID, "userId", user.ID)
	return respond(c, fiber.StatusOK, "Company updated successfully", company)
}

func (cc *CompanyController) GetMembers(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	page, limit, err := pageQuery(c)
	if err != nil {
		return err
	}

	query := cc.DB.Model(&Models.User{}).Where("company_id = ?", user.CompanyID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return err
	}
	members := []Models.User{}
	err = query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&members).Error
	if err != nil {
		return err
	}

	return respond(c, fiber.StatusOK, "Company members fetched successfully", fiber.Map{
		"members":    members,
		"pagination": Tasks.NewPagination(page, limit, total),
	})
}
