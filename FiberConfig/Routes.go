package FiberConfig

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"

	"Workbench/Cache"
	"Workbench/Config"
	"Workbench/Controllers"
	"Workbench/Tasks"
	"Workbench/email"
	"Workbench/middleware"
)

// Deps is everything the HTTP layer needs from main.
type Deps struct {
	DB        *gorm.DB
	Cache     Cache.Cache
	Mailer    email.Sender
	Scheduler Controllers.ManualRunner
}

// New builds the Fiber app with the global middleware stack and every
// route mounted.
func New(cfg *Config.Config, deps Deps) *fiber.App {
	if deps.Cache == nil {
		deps.Cache = Cache.Noop{}
	}

	app := fiber.New(fiber.Config{
		AppName:      "Workbench",
		ErrorHandler: Controllers.ErrorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
	app.Use(requestid.New())
	app.Use(middleware.LoggingMiddleware())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.CORSOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           300,
	}))
	app.Use(limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return cfg.Env == Config.EnvTest
		},
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests, please try again later")
		},
	}))

	SetupRoutes(app, cfg, deps)
	app.Use(Controllers.NotFound)
	return app
}

func SetupRoutes(app *fiber.App, cfg *Config.Config, deps Deps) {
	db := deps.DB
	validate := Controllers.NewValidator()
	auth := middleware.NewAuth(db, deps.Cache, cfg.JWTSecret, cfg.JWTExpiresIn)
	store := Tasks.NewGormStore(db)

	authController := Controllers.NewAuthController(db, auth, deps.Mailer, validate, cfg.BcryptCost, cfg.IsProduction())
	companyController := Controllers.NewCompanyController(db, validate)
	projectController := Controllers.NewProjectController(db, deps.Cache, validate)
	taskController := Controllers.NewTaskController(db, store, deps.Cache, validate)
	carryForwardController := Controllers.NewCarryForwardController(db, deps.Scheduler, store, cfg.Location)
	reportController := Controllers.NewReportController(db)
	healthController := Controllers.NewHealthController(db, deps.Cache, cfg.Env, cfg.APIVersion)

	api := app.Group("/" + cfg.APIVersion)
	verify := auth.Verify()
	manager := middleware.RequireManager()
	employee := middleware.RequireEmployee()

	api.Get("/health", healthController.Health)
	api.Get("/health/ready", healthController.Ready)

	// Auth routes
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authController.Register)
	authRoutes.Post("/login", authController.Login)
	authRoutes.Post("/forgot-password", authController.ForgotPassword)
	authRoutes.Post("/reset-password", authController.ResetPassword)
	authRoutes.Post("/logout", verify, authController.Logout)
	authRoutes.Get("/me", verify, authController.Me)
	authRoutes.Get("/me/activities", verify, authController.MyActivities)

	// Company routes
	company := api.Group("/company", verify)
	company.Get("/", companyController.GetCompany)
	company.Put("/", manager, companyController.UpdateCompany)
	company.Get("/members", manager, companyController.GetMembers)

	// Project routes
	projects := api.Group("/projects", verify)
	projects.Post("/", manager, projectController.CreateProject)
	projects.Get("/", projectController.GetProjects)
	projects.Get("/:id", projectController.GetProject)
	projects.Put("/:id", manager, projectController.UpdateProject)
	projects.Delete("/:id", manager, projectController.DeleteProject)
	projects.Post("/:id/members", manager, projectController.AddMember)
	projects.Delete("/:id/members/:userId", manager, projectController.RemoveMember)

	// Task routes. Fixed paths go before /:id.
	tasks := api.Group("/tasks", verify)
	tasks.Post("/carry-forward", manager, carryForwardController.RunCarryForward)
	tasks.Get("/carry-forward/runs", manager, carryForwardController.ListRuns)
	tasks.Get("/carried-forward", carryForwardController.GetCarriedForward)
	tasks.Get("/carried-forward/export", manager, carryForwardController.ExportCarriedForward)

	tasks.Post("/", manager, taskController.CreateTask)
	tasks.Get("/", taskController.GetTasks)
	tasks.Get("/:id", taskController.GetTask)
	tasks.Put("/:id", manager, taskController.UpdateTask)
	tasks.Delete("/:id", manager, taskController.DeleteTask)
	tasks.Post("/:id/start", employee, taskController.StartTask)
	tasks.Post("/:id/complete", employee, taskController.CompleteTask)
	tasks.Post("/:id/review", manager, taskController.ReviewTask)

	// Report routes
	reports := api.Group("/reports", verify)
	reports.Get("/company", manager, reportController.GetCompanyReport)
	reports.Get("/project/:projectId", manager, reportController.GetProjectReport)
	reports.Get("/employee/:employeeId", manager, reportController.GetEmployeeReport)
	reports.Get("/me", employee, reportController.GetMyReport)
}
