package Controllers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Workbench/Tasks"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success    bool         `json:"success"`
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Data       interface{}  `json:"data"`
	Errors     []FieldError `json:"errors,omitempty"`
}

func respond(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(Response{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// ErrorHandler renders every error returned by a handler or middleware
// in the response envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Something went wrong"
	var fieldErrors []FieldError

	var fe *fiber.Error
	var validation *ValidationError
	var transition *Tasks.TransitionError
	switch {
	case errors.As(err, &validation):
		status = fiber.StatusUnprocessableEntity
		message = "Validation failed"
		fieldErrors = validation.Fields
	case errors.As(err, &fe):
		status = fe.Code
		message = fe.Message
	case errors.As(err, &transition):
		status = fiber.StatusBadRequest
		message = transition.Error()
	case errors.Is(err, Tasks.ErrInvalidTransition):
		status = fiber.StatusBadRequest
		message = err.Error()
	case errors.Is(err, Tasks.ErrNotAssignee), errors.Is(err, Tasks.ErrNotManager):
		status = fiber.StatusForbidden
		message = err.Error()
	case errors.Is(err, Tasks.ErrTaskNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		status = fiber.StatusNotFound
		message = "Resource not found"
	case errors.Is(err, Tasks.ErrStorageUnavailable):
		status = fiber.StatusServiceUnavailable
		message = "Service unavailable"
	}

	if status >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "Request error",
			"method", c.Method(),
			"path", c.OriginalURL(),
			"status", status,
			"error", err,
		)
	}

	return c.Status(status).JSON(Response{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Errors:     fieldErrors,
	})
}

// NotFound answers routes nobody registered.
func NotFound(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "Route "+c.OriginalURL()+" not found")
}

func badRequest(message string) error {
	return fiber.NewError(fiber.StatusBadRequest, message)
}

func forbidden(message string) error {
	return fiber.NewError(fiber.StatusForbidden, message)
}

func notFound(message string) error {
	return fiber.NewError(fiber.StatusNotFound, message)
}

// pageQuery reads page/limit with the shared defaults and cap.
func pageQuery(c *fiber.Ctx) (int, int, error) {
	page, err := optionalInt(c.Query("page"))
	if err != nil {
		return 0, 0, &ValidationError{Fields: []FieldError{{Field: "page", Message: "page must be a positive number"}}}
	}
	limit, err := optionalInt(c.Query("limit"))
	if err != nil {
		return 0, 0, &ValidationError{Fields: []FieldError{{Field: "limit", Message: "limit must be a positive number"}}}
	}
	page, limit = Tasks.NormalizePage(page, limit)
	return page, limit, nil
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("not a positive number")
	}
	return n, nil
}
