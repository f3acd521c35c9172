package Controllers

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"Workbench/Models"
	"Workbench/Tasks"
	"Workbench/email"
	"Workbench/middleware"
)

const tempPasswordLifetime = 30 * time.Minute

// AuthController handles registration, sessions and password recovery
type AuthController struct {
	DB            *gorm.DB
	Auth          *middleware.Auth
	Mailer        email.Sender
	Validate      *Validator
	BcryptCost    int
	SecureCookies bool
	now           func() time.Time
}

func NewAuthController(db *gorm.DB, auth *middleware.Auth, mailer email.Sender, validate *Validator, bcryptCost int, secureCookies bool) *AuthController {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthController{
		DB:            db,
		Auth:          auth,
		Mailer:        mailer,
		Validate:      validate,
		BcryptCost:    bcryptCost,
		SecureCookies: secureCookies,
		now:           time.Now,
	}
}

type registerRequest struct {
	Name         string `json:"name" validate:"required,min=2"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	CompanyName  string `json:"companyName" validate:"omitempty,min=2"`
	CompanyImage string `json:"companyImage" validate:"omitempty,url"`
	CompanyCode  string `json:"companyCode"`
}

// Register creates a manager with a new company (companyName) or an
// employee of an existing one (companyCode).
func (a *AuthController) Register(c *fiber.Ctx) error {
	var input registerRequest
	if err := a.Validate.Bind(c, &input); err != nil {
		return err
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if input.CompanyName == "" && input.CompanyCode == "" {
		return badRequest("Either companyName or companyCode is required")
	}
	if input.CompanyName != "" && input.CompanyCode != "" {
		return badRequest("Cannot provide both companyName and companyCode")
	}

	var existing int64
	if err := a.DB.Model(&Models.User{}).Where("email = ?", input.Email).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return badRequest("User already exists with this email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), a.BcryptCost)
	if err != nil {
		return err
	}

	user := Models.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: string(hash),
	}
	var company Models.Company

	err = a.DB.Transaction(func(tx *gorm.DB) error {
		if input.CompanyName != "" {
			var last Models.Company
			// The unique index on sequence rejects a concurrent duplicate.
			if err := tx.Order("sequence DESC").Limit(1).Find(&last).Error; err != nil {
				return err
			}
			company = Models.Company{
				Sequence: last.Sequence + 1,
				Code:     Models.CompanyCode(last.Sequence + 1),
				Name:     input.CompanyName,
			}
			if input.CompanyImage != "" {
				company.Image = &input.CompanyImage
			}
			if err := tx.Create(&company).Error; err != nil {
				return err
			}
			user.Role = Models.RoleManager
		} else {
			if err := tx.Where("code = ?", strings.ToUpper(strings.TrimSpace(input.CompanyCode))).First(&company).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("Company not found with this code")
				}
				return err
			}
			user.Role = Models.RoleEmployee
		}
		user.CompanyID = company.ID
		return tx.Create(&user).Error
	})
	if err != nil {
		return err
	}

	slog.InfoContext(c.UserContext(), "User registered successfully",
		"userId", user.ID,
		"email", user.Email,
		"companyId", company.ID,
		"companyCode", company.Code,
		"role", user.Role,
	)

	return respond(c, fiber.StatusCreated, "User registered successfully", fiber.Map{
		"userId":      user.ID,
		"email":       user.Email,
		"role":        user.Role,
		"companyCode": company.Code,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	var input loginRequest
	if err := a.Validate.Bind(c, &input); err != nil {
		return err
	}

	var user Models.User
	err := a.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)) != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
	}

	if err := a.recordActivity(c, user.ID, Models.ActivityLogin, true); err != nil {
		return err
	}
	user.IsActive = true

	token, expires, err := a.Auth.IssueToken(user)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.SecureCookies,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	slog.InfoContext(c.UserContext(), "User logged in successfully", "userId", user.ID, "email", user.Email, "ip", c.IP())

	return respond(c, fiber.StatusOK, "Login successful", fiber.Map{
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
		"accessToken": token,
	})
}

func (a *AuthController) Logout(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	if err := a.recordActivity(c, user.ID, Models.ActivityLogout, false); err != nil {
		return err
	}
	c.ClearCookie(middleware.AccessTokenCookie)

	slog.InfoContext(c.UserContext(), "User logged out successfully", "userId", user.ID, "email", user.Email)
	return respond(c, fiber.StatusOK, "Logout successful", nil)
}

// recordActivity flips the user's active flag and appends the audit row
// in one transaction, then drops the cached session.
func (a *AuthController) recordActivity(c *fiber.Ctx, userID string, activityType Models.ActivityType, active bool) error {
	err := a.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Models.User{}).Where("id = ?", userID).Update("is_active", active).Error; err != nil {
			return err
		}
		return tx.Create(&Models.UserActivity{
			UserID:    userID,
			Type:      activityType,
			IPAddress: c.IP(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
		}).Error
	})
	if err != nil {
		return err
	}
	a.Auth.Forget(c, userID)
	return nil
}

func (a *AuthController) Me(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	return respond(c, fiber.StatusOK, "User fetched successfully", user)
}

func (a *AuthController) MyActivities(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)
	page, limit, err := pageQuery(c)
	if err != nil {
		return err
	}

	query := a.DB.Model(&Models.UserActivity{}).Where("user_id = ?", user.ID)
	switch activityType := Models.ActivityType(c.Query("type")); activityType {
	case "":
	case Models.ActivityLogin, Models.ActivityLogout:
		query = query.Where("type = ?", activityType)
	default:
		return invalidField("type", "type must be one of [LOGIN LOGOUT]")
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return err
	}
	activities := []Models.UserActivity{}
	err = query.Session(&gorm.Session{}).
		Order("timestamp DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&activities).Error
	if err != nil {
		return err
	}

	return respond(c, fiber.StatusOK, "Activities fetched successfully", fiber.Map{
		"activities": activities,
		"pagination": Tasks.NewPagination(page, limit, total),
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword stores a hashed temporary password valid for 30 minutes
// and mails the clear text to the user.
func (a *AuthController) ForgotPassword(c *fiber.Ctx) error {
	var input forgotPasswordRequest
	if err := a.Validate.Bind(c, &input); err != nil {
		return err
	}

	var user Models.User
	err := a.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("User not found")
	}
	if err != nil {
		return err
	}

	tempPassword := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), a.BcryptCost)
	if err != nil {
		return err
	}
	expiry := a.now().Add(tempPasswordLifetime).UTC()
	err = a.DB.Model(&user).Updates(map[string]interface{}{
		"temp_password":        string(hash),
		"temp_password_expiry": expiry,
	}).Error
	if err != nil {
		return err
	}

	message, err := email.ForgotPassword(user.Email, user.Name, tempPassword, "30 minutes")
	if err != nil {
		return err
	}
	if err := a.Mailer.Send(c.UserContext(), message); err != nil {
		slog.ErrorContext(c.UserContext(), "Error sending password reset email", "userId", user.ID, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to send email")
	}

	slog.InfoContext(c.UserContext(), "Temporary password generated", "userId", user.ID, "email", user.Email, "expiresAt", expiry)
	return respond(c, fiber.StatusOK, "Temporary password sent to your email", nil)
}

type resetPasswordRequest struct {
	Email        string `json:"email" validate:"required,email"`
	TempPassword string `json:"tempPassword" validate:"required"`
	NewPassword  string `json:"newPassword" validate:"required,min=8"`
}

func (a *AuthController) ResetPassword(c *fiber.Ctx) error {
	var input resetPasswordRequest
	if err := a.Validate.Bind(c, &input); err != nil {
		return err
	}

	var user Models.User
	err := a.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("User not found")
	}
	if err != nil {
		return err
	}

	if user.TempPassword == nil || user.TempPasswordExpiry == nil {
		return badRequest("No temporary password found. Please request a new one")
	}
	if a.now().After(*user.TempPasswordExpiry) {
		return badRequest("Temporary password has expired. Please request a new one")
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.TempPassword), []byte(input.TempPassword)) != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid temporary password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), a.BcryptCost)
	if err != nil {
		return err
	}
	err = a.DB.Model(&user).Updates(map[string]interface{}{
		"password":             string(hash),
		"temp_password":        nil,
		"temp_password_expiry": nil,
	}).Error
	if err != nil {
		return err
	}
	a.Auth.Forget(c, user.ID)

	if message, err := email.PasswordResetSuccess(user.Email, user.Name); err == nil {
		if err := a.Mailer.Send(c.UserContext(), message); err != nil {
			slog.WarnContext(c.UserContext(), "Error sending password reset confirmation", "userId", user.ID, "error", err)
		}
	}

	slog.InfoContext(c.UserContext(), "Password reset successful", "userId", user.ID, "email", user.Email)
	return respond(c, fiber.StatusOK, "Password reset successful", nil)
}
